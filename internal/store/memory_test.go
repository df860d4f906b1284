package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"infergate/internal/apperrors"
)

func TestMemory_PutHeadGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory("test-bucket")

	body := []byte(`{"sequence":"MKTVR"}`)
	if err := m.Put(ctx, "test-bucket", "input/abc.json", body, "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	obj, err := m.Head(ctx, "test-bucket", "input/abc.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if !obj.Exists {
		t.Fatal("expected object to exist")
	}
	if obj.ContentLength != int64(len(body)) {
		t.Errorf("ContentLength = %d, want %d", obj.ContentLength, len(body))
	}
	if obj.LastModified.IsZero() {
		t.Error("expected LastModified to be set")
	}

	got, err := m.Get(ctx, "test-bucket", "input/abc.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("Get = %q, want %q", got, body)
	}
}

func TestMemory_MissingObjectIsNotAnError(t *testing.T) {
	t.Parallel()
	m := NewMemory("test-bucket")

	obj, err := m.Head(context.Background(), "test-bucket", "never-written.out")
	if err != nil {
		t.Fatalf("Head on missing object returned error: %v", err)
	}
	if obj.Exists {
		t.Error("missing object reported as existing")
	}
}

func TestMemory_MissingBucketIsConfigError(t *testing.T) {
	t.Parallel()
	m := NewMemory("test-bucket")

	_, err := m.Head(context.Background(), "no-such-bucket", "key")
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
	if code := apperrors.Code(err); code != "BUCKET_NOT_FOUND" {
		t.Errorf("code = %q, want BUCKET_NOT_FOUND", code)
	}

	if err := m.Ready(context.Background(), "no-such-bucket"); err == nil {
		t.Error("Ready on missing bucket should fail")
	}
	if err := m.Ready(context.Background(), "test-bucket"); err != nil {
		t.Errorf("Ready on existing bucket: %v", err)
	}
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory("test-bucket")

	if err := m.Put(ctx, "test-bucket", "k", []byte("original"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	first, _ := m.Get(ctx, "test-bucket", "k")
	first[0] = 'X'

	second, _ := m.Get(ctx, "test-bucket", "k")
	if string(second) != "original" {
		t.Errorf("mutating a returned slice changed stored content: %q", second)
	}
}
