package observability

import (
	"fmt"
	"log/slog"
	"time"

	"infergate/internal/dispatcher"
	"infergate/pkg/cloudevent"
)

// Lifecycle event types published on the callback side channel.
const (
	EventJobSubmitted = "infergate.job.submitted"
	EventJobAnomaly   = "infergate.job.anomaly"
)

// EventSink publishes job lifecycle notifications. Delivery is
// fire-and-forget: sinks never return errors and never block callers.
type EventSink interface {
	Emit(eventType, jobID string, data map[string]any)
}

// NopSink discards all events. Used when no callback URL is configured.
type NopSink struct{}

func (NopSink) Emit(string, string, map[string]any) {}

// DispatcherSink publishes lifecycle events as CloudEvents through an
// async dispatcher. Queue-full and delivery failures are logged and
// swallowed.
type DispatcherSink struct {
	dispatcher  dispatcher.Dispatcher
	source      string
	destination string
	signingKey  string
	logger      *slog.Logger
}

// NewDispatcherSink creates a sink delivering events to destination.
func NewDispatcherSink(d dispatcher.Dispatcher, source, destination, signingKey string, logger *slog.Logger) *DispatcherSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DispatcherSink{
		dispatcher:  d,
		source:      source,
		destination: destination,
		signingKey:  signingKey,
		logger:      logger,
	}
}

func (s *DispatcherSink) Emit(eventType, jobID string, data map[string]any) {
	eventID := fmt.Sprintf("%s-%d", jobID, time.Now().UnixNano())
	event := cloudevent.New(eventType, s.source, jobID, eventID, data)

	err := s.dispatcher.Dispatch(&dispatcher.Event{
		Payload:     event,
		Destination: s.destination,
		SigningKey:  s.signingKey,
	})
	if err != nil {
		s.logger.Warn("lifecycle event dropped",
			slog.String("event_type", eventType),
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}

var _ EventSink = (*DispatcherSink)(nil)
var _ EventSink = NopSink{}
