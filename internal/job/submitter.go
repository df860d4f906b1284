package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"infergate/internal/apperrors"
	"infergate/internal/backend"
	"infergate/internal/observability"
	"infergate/internal/sequence"
	"infergate/internal/store"
	"infergate/internal/storepath"
)

// SubmitterConfig tunes submission behavior.
type SubmitterConfig struct {
	Layout            storepath.Layout
	InvocationTimeout time.Duration // default: 1h
	RequestTTL        time.Duration // default: 6h
	CheckInterval     time.Duration // default: 30s
}

func (c SubmitterConfig) withDefaults() SubmitterConfig {
	if c.InvocationTimeout <= 0 {
		c.InvocationTimeout = time.Hour
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = 6 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	return c
}

// Submitter validates sequences, stages input objects and invokes the
// asynchronous backend.
type Submitter struct {
	store   store.Store
	invoker backend.Invoker
	config  SubmitterConfig
	logger  *slog.Logger
	sink    observability.EventSink

	// newID generates candidate job identifiers. Overridden in tests.
	newID func() string
}

// NewSubmitter creates a Submitter. A nil sink disables lifecycle events.
func NewSubmitter(st store.Store, invoker backend.Invoker, cfg SubmitterConfig, sink observability.EventSink, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Submitter{
		store:   st,
		invoker: invoker,
		config:  cfg.withDefaults(),
		logger:  logger,
		sink:    sink,
		newID:   uuid.NewString,
	}
}

// inputBody is the JSON document staged for the backend.
type inputBody struct {
	Sequence string `json:"sequence"`
}

// Submit validates raw, stages the input object and invokes the
// backend. The input object is fully written before the backend is
// invoked; the returned JobID is the backend's correlation identifier,
// which may differ from the identifier used for the input object.
func (s *Submitter) Submit(ctx context.Context, raw string) (*Submission, error) {
	validation := sequence.Validate(raw)
	if !validation.IsValid {
		return nil, apperrors.Validation("INVALID_SEQUENCE", validation.Errors)
	}
	seq := sequence.Normalize(raw)

	jobID := s.newID()
	layout := s.config.Layout
	inputKey := layout.Key(jobID, storepath.KindInput)
	inputURI := layout.URI(jobID, storepath.KindInput)

	body, err := json.Marshal(inputBody{Sequence: seq})
	if err != nil {
		return nil, apperrors.Internal("job.submit", err)
	}

	// The backend reads the input on its own schedule, so the object
	// must be durable before the invocation is enqueued.
	if err := s.store.Put(ctx, layout.Bucket, inputKey, body, "application/json"); err != nil {
		s.logger.Error("Failed to stage input object",
			slog.String("job_id", jobID),
			slog.String("key", inputKey),
			slog.String("error", err.Error()))
		return nil, err
	}

	out, err := s.invoker.InvokeAsync(ctx, &backend.InvokeInput{
		InputLocation:     inputURI,
		ContentType:       "application/json",
		InvocationTimeout: s.config.InvocationTimeout,
		RequestTTL:        s.config.RequestTTL,
		InferenceID:       jobID,
	})
	if err != nil {
		s.logger.Error("Backend invocation failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
		return nil, err
	}
	if out.InferenceID == "" {
		return nil, apperrors.Protocol("PROTOCOL_VIOLATION",
			"backend acknowledged the invocation without a correlation identifier")
	}

	// The backend's identifier is authoritative from here on.
	outputLocation := out.OutputLocation
	if outputLocation == "" {
		outputLocation = layout.URI(out.InferenceID, storepath.KindOutput)
	}

	estimated := EstimateMinutes(len(seq))
	interval := int(s.config.CheckInterval.Seconds())

	s.logger.Info("Job submitted",
		slog.String("job_id", out.InferenceID),
		slog.Int("sequence_length", len(seq)),
		slog.Int("estimated_minutes", estimated))

	s.sink.Emit(observability.EventJobSubmitted, out.InferenceID, map[string]any{
		"sequence_length":   len(seq),
		"estimated_minutes": estimated,
	})

	return &Submission{
		JobID:            out.InferenceID,
		Status:           StatusSubmitted,
		InputLocation:    inputURI,
		OutputLocation:   outputLocation,
		EstimatedMinutes: estimated,
		Message: fmt.Sprintf(
			"Job submitted. Estimated completion in ~%d minute(s); check for the result every %d seconds.",
			estimated, interval),
	}, nil
}
