// Package dispatcher provides async event dispatch with buffering and retry.
// The gateway uses it as a fire-and-forget side channel for job lifecycle
// notifications; delivery never blocks or fails a request.
package dispatcher

import (
	"context"
	"errors"

	"infergate/pkg/cloudevent"
)

// ErrBufferFull reports that the queue was full and the event was dropped.
var ErrBufferFull = errors.New("dispatcher buffer full, event dropped")

// Event pairs a CloudEvent payload with its delivery target. Requeues counts
// circuit-breaker deferrals and is managed by the dispatcher.
type Event struct {
	Payload     *cloudevent.CloudEvent
	Destination string
	SigningKey  string
	Requeues    int
}

// Dispatcher queues events for asynchronous delivery.
type Dispatcher interface {
	// Dispatch enqueues an event without blocking. It returns ErrBufferFull
	// when the event had to be dropped.
	Dispatch(event *Event) error

	// Stats reports cumulative delivery counters.
	Stats() Stats

	// Close drains queued events and stops the workers. The context
	// deadline bounds the drain.
	Close(ctx context.Context) error
}

// Stats is a point-in-time snapshot of dispatcher activity.
type Stats struct {
	QueueDepth    int
	Queued        int64
	Delivered     int64
	Failed        int64
	Dropped       int64
	Requeued      int64
	RetriesTotal  int64
	BreakersTotal int
	BreakersOpen  int
}
