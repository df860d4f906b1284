package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"infergate/internal/apperrors"
)

// Memory is an in-memory Store for tests and local runs. It mimics the
// real store's contract: missing objects are not errors, buckets must
// exist before use, and reads never mutate state.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

type memObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewMemory creates an empty in-memory store with the given buckets.
func NewMemory(buckets ...string) *Memory {
	m := &Memory{buckets: make(map[string]map[string]memObject)}
	for _, b := range buckets {
		m.buckets[b] = make(map[string]memObject)
	}
	return m
}

func (m *Memory) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return apperrors.Config("BUCKET_NOT_FOUND", fmt.Sprintf("bucket %q does not exist", bucket))
	}
	data := make([]byte, len(body))
	copy(data, body)
	objs[key] = memObject{data: data, contentType: contentType, modified: time.Now().UTC()}
	return nil
}

func (m *Memory) Head(ctx context.Context, bucket, key string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return Object{}, apperrors.Config("BUCKET_NOT_FOUND", fmt.Sprintf("bucket %q does not exist", bucket))
	}
	obj, ok := objs[key]
	if !ok {
		return Object{}, nil
	}
	return Object{
		Exists:        true,
		LastModified:  obj.modified,
		ContentLength: int64(len(obj.data)),
		ETag:          fmt.Sprintf("%q", key),
	}, nil
}

func (m *Memory) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	objs, ok := m.buckets[bucket]
	if !ok {
		return nil, apperrors.Config("BUCKET_NOT_FOUND", fmt.Sprintf("bucket %q does not exist", bucket))
	}
	obj, ok := objs[key]
	if !ok {
		return nil, apperrors.Internal("store.get", fmt.Errorf("object %s/%s does not exist", bucket, key))
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

func (m *Memory) Ready(ctx context.Context, bucket string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.buckets[bucket]; !ok {
		return apperrors.Config("BUCKET_NOT_FOUND", fmt.Sprintf("bucket %q does not exist", bucket))
	}
	return nil
}

// Delete removes an object. Used by tests to simulate object lifecycle.
func (m *Memory) Delete(bucket, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if objs, ok := m.buckets[bucket]; ok {
		delete(objs, key)
	}
}

var _ Store = (*Memory)(nil)
