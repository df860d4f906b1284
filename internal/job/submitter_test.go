package job

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"infergate/internal/apperrors"
	"infergate/internal/backend"
	"infergate/internal/store"
	"infergate/internal/storepath"
)

func testLayout() storepath.Layout {
	return storepath.Layout{
		Bucket:        "inference-bucket",
		InputPrefix:   "inputs",
		OutputPrefix:  "outputs",
		FailurePrefix: "failures",
	}
}

// fakeInvoker records the invocation and optionally verifies store
// state at invoke time.
type fakeInvoker struct {
	lastInput *backend.InvokeInput
	output    *backend.InvokeOutput
	err       error
	onInvoke  func(in *backend.InvokeInput) error
}

func (f *fakeInvoker) InvokeAsync(ctx context.Context, in *backend.InvokeInput) (*backend.InvokeOutput, error) {
	f.lastInput = in
	if f.onInvoke != nil {
		if err := f.onInvoke(in); err != nil {
			return nil, err
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.output != nil {
		return f.output, nil
	}
	return &backend.InvokeOutput{InferenceID: in.InferenceID}, nil
}

func newTestSubmitter(st store.Store, invoker backend.Invoker) *Submitter {
	return NewSubmitter(st, invoker, SubmitterConfig{Layout: testLayout()}, nil, nil)
}

func TestSubmit(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{}
	s := newTestSubmitter(mem, invoker)

	sub, err := s.Submit(context.Background(), "MKTVRQERLK")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if sub.Status != StatusSubmitted {
		t.Errorf("expected status submitted, got %s", sub.Status)
	}
	if sub.JobID == "" {
		t.Fatal("expected a job id")
	}
	if sub.EstimatedMinutes != 1 {
		t.Errorf("expected 1 minute estimate, got %d", sub.EstimatedMinutes)
	}
	if !strings.Contains(sub.Message, "30 seconds") {
		t.Errorf("expected check interval in message, got %q", sub.Message)
	}

	// Input object must exist with the normalized sequence.
	data, err := mem.Get(context.Background(), "inference-bucket", testLayout().Key(sub.JobID, storepath.KindInput))
	if err != nil {
		t.Fatalf("input object missing: %v", err)
	}
	var body struct {
		Sequence string `json:"sequence"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatalf("input object is not JSON: %v", err)
	}
	if body.Sequence != "MKTVRQERLK" {
		t.Errorf("unexpected staged sequence: %q", body.Sequence)
	}
}

func TestSubmitNormalizesBeforeStaging(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{}
	s := newTestSubmitter(mem, invoker)

	sub, err := s.Submit(context.Background(), "  mktvrqerlk  ")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	data, err := mem.Get(context.Background(), "inference-bucket", testLayout().Key(sub.JobID, storepath.KindInput))
	if err != nil {
		t.Fatalf("input object missing: %v", err)
	}
	if !strings.Contains(string(data), `"MKTVRQERLK"`) {
		t.Errorf("expected normalized sequence in input object, got %s", data)
	}
}

func TestSubmitInputWrittenBeforeInvoke(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{}
	invoker.onInvoke = func(in *backend.InvokeInput) error {
		// The input object must already be durable when the backend
		// is invoked.
		bucket, key, err := storepath.SplitURI(in.InputLocation)
		if err != nil {
			return err
		}
		obj, err := mem.Head(context.Background(), bucket, key)
		if err != nil {
			return err
		}
		if !obj.Exists {
			return errors.New("input object not written before invoke")
		}
		return nil
	}
	s := newTestSubmitter(mem, invoker)

	if _, err := s.Submit(context.Background(), "ACDEFGHIKLMNPQRSTVWY"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestSubmitBackendIDAuthoritative(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{output: &backend.InvokeOutput{
		InferenceID:    "backend-id-42",
		OutputLocation: "s3://inference-bucket/outputs/backend-id-42.out",
	}}
	s := newTestSubmitter(mem, invoker)

	sub, err := s.Submit(context.Background(), "MKTVRQERLK")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if sub.JobID != "backend-id-42" {
		t.Errorf("expected backend id, got %s", sub.JobID)
	}
	if sub.OutputLocation != "s3://inference-bucket/outputs/backend-id-42.out" {
		t.Errorf("unexpected output location: %s", sub.OutputLocation)
	}
}

func TestSubmitMissingBackendID(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{output: &backend.InvokeOutput{InferenceID: ""}}
	s := newTestSubmitter(mem, invoker)

	_, err := s.Submit(context.Background(), "MKTVRQERLK")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperrors.ErrProtocol) {
		t.Errorf("expected protocol error, got %v", err)
	}
	if apperrors.Code(err) != "PROTOCOL_VIOLATION" {
		t.Errorf("expected PROTOCOL_VIOLATION, got %s", apperrors.Code(err))
	}
}

func TestSubmitInvalidSequence(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{}
	s := newTestSubmitter(mem, invoker)

	_, err := s.Submit(context.Background(), "MKTVRQERLKXZ")
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	violations := apperrors.Violations(err)
	if len(violations) != 1 || !strings.Contains(violations[0], "X, Z") {
		t.Errorf("expected invalid character violation naming X and Z, got %v", violations)
	}
	if invoker.lastInput != nil {
		t.Error("backend must not be invoked for invalid input")
	}
}

func TestSubmitRejectedByBackend(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{err: apperrors.Rejected("BACKEND_REJECTED", "payload too large")}
	s := newTestSubmitter(mem, invoker)

	_, err := s.Submit(context.Background(), "MKTVRQERLK")
	if !errors.Is(err, apperrors.ErrRejected) {
		t.Errorf("expected rejected error, got %v", err)
	}
}

func TestSubmitStoreUnavailable(t *testing.T) {
	t.Parallel()
	// Bucket missing from the memory store surfaces as a config error.
	mem := store.NewMemory()
	invoker := &fakeInvoker{}
	s := newTestSubmitter(mem, invoker)

	_, err := s.Submit(context.Background(), "MKTVRQERLK")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, apperrors.ErrConfig) {
		t.Errorf("expected config error, got %v", err)
	}
	if invoker.lastInput != nil {
		t.Error("backend must not be invoked when staging fails")
	}
}

func TestSubmitInvocationTimeoutsPropagated(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory("inference-bucket")
	invoker := &fakeInvoker{}
	s := newTestSubmitter(mem, invoker)

	if _, err := s.Submit(context.Background(), "MKTVRQERLK"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	in := invoker.lastInput
	if in.InvocationTimeout.Hours() != 1 {
		t.Errorf("expected 1h invocation timeout, got %v", in.InvocationTimeout)
	}
	if in.RequestTTL.Hours() != 6 {
		t.Errorf("expected 6h request TTL, got %v", in.RequestTTL)
	}
	if in.ContentType != "application/json" {
		t.Errorf("unexpected content type: %s", in.ContentType)
	}
}
