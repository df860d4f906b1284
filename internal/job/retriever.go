package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"infergate/internal/apperrors"
	"infergate/internal/observability"
	"infergate/internal/store"
	"infergate/internal/storepath"
)

// RetrieverConfig tunes retrieval behavior.
type RetrieverConfig struct {
	Layout        storepath.Layout
	CheckInterval time.Duration // default: 30s
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	return c
}

// Retriever derives a job's status from the store and fetches its
// result. Retrieval never mutates store state, so a retrieval can be
// repeated any number of times with the same outcome until the backend
// writes.
type Retriever struct {
	store  store.Store
	config RetrieverConfig
	logger *slog.Logger
	sink   observability.EventSink
}

// NewRetriever creates a Retriever. A nil sink disables anomaly events.
func NewRetriever(st store.Store, cfg RetrieverConfig, sink observability.EventSink, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Retriever{
		store:  st,
		config: cfg.withDefaults(),
		logger: logger,
		sink:   sink,
	}
}

// Get resolves handle to a job identifier, probes the job's output and
// failure objects, and reports the observed state.
//
// Malformed handles and store misconfiguration fail immediately.
// Transient store trouble does not: the probe that failed is treated
// as inconclusive, a warning is attached to the result, and the job is
// reported in progress so the caller polls again.
func (r *Retriever) Get(ctx context.Context, handle string) (*Result, error) {
	jobID, err := storepath.ExtractJobID(handle)
	if err != nil {
		return nil, err
	}
	layout := r.config.Layout
	if err := layout.Validate(); err != nil {
		return nil, err
	}

	var warnings []string

	outObj, err := r.store.Head(ctx, layout.Bucket, layout.Key(jobID, storepath.KindOutput))
	if err != nil {
		if !apperrors.Retryable(err) {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf("output check failed, will retry: %v", err))
	}

	failObj, err := r.store.Head(ctx, layout.Bucket, layout.Key(jobID, storepath.KindFailure))
	if err != nil {
		if !apperrors.Retryable(err) {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf("failure check failed, will retry: %v", err))
	}

	// Both objects existing means the backend broke its contract.
	// The output wins; the anomaly is reported out of band.
	if outObj.Exists && failObj.Exists {
		r.logger.Warn("Job has both output and failure objects, treating as completed",
			slog.String("job_id", jobID))
		r.sink.Emit(observability.EventJobAnomaly, jobID, map[string]any{
			"anomaly": "output and failure objects both present",
		})
	}

	switch {
	case outObj.Exists:
		return r.completed(ctx, jobID, outObj, warnings)
	case failObj.Exists:
		return r.failed(ctx, jobID, failObj, warnings)
	}
	return r.inProgress(jobID, warnings), nil
}

func (r *Retriever) completed(ctx context.Context, jobID string, obj store.Object, warnings []string) (*Result, error) {
	layout := r.config.Layout
	data, err := r.store.Get(ctx, layout.Bucket, layout.Key(jobID, storepath.KindOutput))
	if err != nil {
		if !apperrors.Retryable(err) {
			return nil, err
		}
		// The object was just observed; the fetch should succeed next time.
		warnings = append(warnings, fmt.Sprintf("result fetch failed, will retry: %v", err))
		return r.inProgress(jobID, warnings), nil
	}

	payload, parseWarnings := parsePayload(data, "result object")
	warnings = append(warnings, parseWarnings...)

	return &Result{
		JobID:          jobID,
		Status:         StatusCompleted,
		Payload:        payload,
		Message:        "Job completed.",
		CompletionTime: objectTimestamp(obj),
		Warnings:       warnings,
	}, nil
}

func (r *Retriever) failed(ctx context.Context, jobID string, obj store.Object, warnings []string) (*Result, error) {
	layout := r.config.Layout
	data, err := r.store.Get(ctx, layout.Bucket, layout.Key(jobID, storepath.KindFailure))
	if err != nil {
		if !apperrors.Retryable(err) {
			return nil, err
		}
		warnings = append(warnings, fmt.Sprintf("failure fetch failed, will retry: %v", err))
		return r.inProgress(jobID, warnings), nil
	}

	// The failure object is parsed exactly like an output object so a
	// backend writing structured diagnostics gets them through intact.
	details, parseWarnings := parsePayload(data, "failure object")
	warnings = append(warnings, parseWarnings...)

	return &Result{
		JobID:        jobID,
		Status:       StatusFailed,
		Error:        failureSummary(details, data),
		ErrorDetails: details,
		Message:      "Job failed.",
		FailureTime:  objectTimestamp(obj),
		Warnings:     warnings,
	}, nil
}

func (r *Retriever) inProgress(jobID string, warnings []string) *Result {
	interval := int(r.config.CheckInterval.Seconds())
	return &Result{
		JobID:                jobID,
		Status:               StatusInProgress,
		Message:              fmt.Sprintf("Job is still processing. Check again in %d seconds.", interval),
		CheckIntervalSeconds: interval,
		Warnings:             warnings,
	}
}

// parsePayload decodes a result or failure object. The backend is
// supposed to write a JSON document, but a malformed one must not
// strand the job: non-JSON content is surfaced verbatim under
// "raw_output". what names the object in warnings.
func parsePayload(data []byte, what string) (map[string]any, []string) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, []string{what + " was empty"}
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err == nil {
		return payload, nil
	}

	// Not a JSON object. Could still be a bare JSON value; either way
	// the caller gets the raw text.
	return map[string]any{"raw_output": string(data)},
		[]string{what + " was not a JSON document, returning raw content"}
}

// failureSummary picks a one-line diagnostic out of parsed failure
// details, falling back to the raw content.
func failureSummary(details map[string]any, raw []byte) string {
	if msg, ok := details["error_message"].(string); ok && strings.TrimSpace(msg) != "" {
		return msg
	}
	diagnostic := strings.TrimSpace(string(raw))
	if diagnostic == "" {
		return "backend reported a failure without diagnostics"
	}
	return diagnostic
}

// objectTimestamp renders an object's last-modified time for the
// result payload. Stores that don't report one yield "".
func objectTimestamp(obj store.Object) string {
	if obj.LastModified.IsZero() {
		return ""
	}
	return obj.LastModified.UTC().Format(time.RFC3339)
}
