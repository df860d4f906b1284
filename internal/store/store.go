// Package store abstracts the object store the gateway and the
// inference backend share. The store is the single source of truth for
// job state: a job's status is derived entirely from which of its
// objects exist.
package store

import (
	"context"
	"time"
)

// Object describes the result of probing a single object.
type Object struct {
	Exists        bool
	LastModified  time.Time
	ContentLength int64
	ETag          string
}

// Store is the object store collaborator contract. Implementations
// must classify failures through the apperrors taxonomy so callers can
// tell configuration defects from transient unavailability.
//
// Reads never mutate store state; calling Head or Get any number of
// times on the same object returns the same result until the backend
// writes.
type Store interface {
	// Put writes an object. The write is complete when Put returns.
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error

	// Head probes an object's existence and metadata. A missing object
	// is not an error: it returns Object{Exists: false} and a nil error.
	Head(ctx context.Context, bucket, key string) (Object, error)

	// Get fetches an object's content.
	Get(ctx context.Context, bucket, key string) ([]byte, error)

	// Ready verifies the bucket is reachable with current credentials.
	Ready(ctx context.Context, bucket string) error
}
