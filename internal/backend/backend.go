// Package backend defines the asynchronous inference backend contract.
//
// The backend is opaque: the gateway hands it the location of an input
// object and gets back a correlation identifier. The backend reads the
// input on its own schedule and writes its result to the output
// location on success or the failure location on error. The gateway
// never observes the backend's internal queueing or compute.
package backend

import (
	"context"
	"time"
)

// InvokeInput describes one asynchronous invocation request.
type InvokeInput struct {
	// InputLocation is the fully-qualified store URI of the input
	// object. The object must be fully written before invocation.
	InputLocation string

	// ContentType of the input object.
	ContentType string

	// InvocationTimeout bounds how long the backend may spend on one
	// invocation once it starts.
	InvocationTimeout time.Duration

	// RequestTTL bounds how long the request may sit queued before the
	// backend gives up on it.
	RequestTTL time.Duration

	// InferenceID optionally proposes a correlation identifier. The
	// backend may override it; its response is authoritative.
	InferenceID string
}

// InvokeOutput is the backend's acknowledgement of an async invocation.
type InvokeOutput struct {
	// InferenceID is the backend's authoritative correlation
	// identifier for this invocation.
	InferenceID string

	// OutputLocation is where the backend will write the result.
	OutputLocation string

	// FailureLocation is where the backend will write diagnostics if
	// the invocation fails. May be empty if the backend does not
	// report it.
	FailureLocation string
}

// Invoker submits work to the asynchronous inference backend.
type Invoker interface {
	InvokeAsync(ctx context.Context, in *InvokeInput) (*InvokeOutput, error)
}
