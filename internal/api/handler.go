// Package api provides the HTTP API handlers and routing for the gateway.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"infergate/internal/apperrors"
	"infergate/internal/dispatcher"
	"infergate/internal/health"
	"infergate/internal/job"
	"infergate/internal/observability"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the gateway API
type Handler struct {
	submitter  *job.Submitter
	retriever  *job.Retriever
	metrics    *observability.Metrics
	health     *health.Checker
	dispatcher dispatcher.Dispatcher
}

// NewHandler creates a new API handler
func NewHandler(submitter *job.Submitter, retriever *job.Retriever, metrics *observability.Metrics, healthChecker *health.Checker, d dispatcher.Dispatcher) *Handler {
	return &Handler{
		submitter:  submitter,
		retriever:  retriever,
		metrics:    metrics,
		health:     healthChecker,
		dispatcher: d,
	}
}

// submitRequest is the body of POST /v1/jobs.
type submitRequest struct {
	Sequence string `json:"sequence"`
}

// opRequest is the body of POST /v1/ops.
type opRequest struct {
	Operation string         `json:"operation"`
	Payload   map[string]any `json:"payload"`
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, r, apperrors.Validation("INVALID_REQUEST_BODY",
			[]string{"request body must be a JSON object with a sequence field"}))
		return
	}

	h.submit(w, r, req.Sequence)
}

// GetJob handles GET /v1/jobs/{handle}. The handle may be a bare job
// ID or a URL-encoded store URI.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	handle := r.PathValue("handle")
	if decoded, err := url.PathUnescape(handle); err == nil {
		handle = decoded
	}

	h.retrieve(w, r, handle)
}

// ExecuteOp handles POST /v1/ops - the operation dispatch surface used
// by tool-calling agents. Operation names may carry a toolkit prefix.
func (h *Handler) ExecuteOp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req opRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, r, apperrors.Validation("INVALID_REQUEST_BODY",
			[]string{"request body must be a JSON object with operation and payload fields"}))
		return
	}

	op, err := job.ParseOperation(req.Operation)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	switch op {
	case job.OpSubmitSequence:
		seq, ok := req.Payload["sequence"].(string)
		if !ok {
			h.handleError(w, r, apperrors.Validation("INVALID_SEQUENCE",
				[]string{"payload field sequence must be a string"}))
			return
		}
		h.submit(w, r, seq)

	case job.OpGetResult:
		handle, ok := req.Payload["job_id"].(string)
		if !ok {
			h.handleError(w, r, apperrors.Validation("INVALID_HANDLE_FORMAT",
				[]string{"payload field job_id must be a string"}))
			return
		}
		h.retrieve(w, r, handle)
	}
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, sequence string) {
	start := time.Now()
	sub, err := h.submitter.Submit(r.Context(), sequence)
	if h.metrics != nil {
		h.metrics.RecordSubmission(r.Context(), len(sequence), err == nil, time.Since(start).Seconds())
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeEnvelope(w, http.StatusAccepted, job.Envelope{Success: true, Data: sub})
}

func (h *Handler) retrieve(w http.ResponseWriter, r *http.Request, handle string) {
	start := time.Now()
	result, err := h.retriever.Get(r.Context(), handle)
	if h.metrics != nil {
		status := "error"
		if err == nil {
			status = result.Status
		}
		h.metrics.RecordRetrieval(r.Context(), status, time.Since(start).Seconds())
	}
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// A failed job is a successful retrieval: the envelope carries the
	// failure, the transport does not.
	if result.Status == job.StatusFailed {
		details := map[string]any{
			"job_id":        result.JobID,
			"status":        result.Status,
			"error_details": result.ErrorDetails,
		}
		if result.FailureTime != "" {
			details["failure_time"] = result.FailureTime
		}
		h.writeEnvelope(w, http.StatusOK, job.Envelope{
			Success:   false,
			ErrorCode: "PREDICTION_FAILED",
			Message:   result.Error,
			Details:   details,
		})
		return
	}

	h.writeEnvelope(w, http.StatusOK, job.Envelope{Success: true, Data: result})
}

// Stats handles GET /internal/stats - dispatcher delivery statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		h.writeEnvelope(w, http.StatusOK, job.Envelope{Success: true, Data: dispatcher.Stats{}})
		return
	}
	h.writeEnvelope(w, http.StatusOK, job.Envelope{Success: true, Data: h.dispatcher.Stats()})
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the object store is unreachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeEnvelope stamps the envelope and writes it.
func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, env job.Envelope) {
	env.Timestamp = time.Now().UTC()
	h.writeJSON(w, status, env)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// handleError maps a classified error onto the response envelope.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}

	envelope := job.Envelope{
		Success:   false,
		ErrorCode: apperrors.Code(err),
		Message:   err.Error(),
	}
	if violations := apperrors.Violations(err); len(violations) > 0 {
		envelope.Details = map[string]any{"violations": violations}
	}
	if after := apperrors.RetryAfter(err); after > 0 {
		if envelope.Details == nil {
			envelope.Details = map[string]any{}
		}
		envelope.Details["retry_after_seconds"] = int(after.Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(int(after.Seconds())))
	}

	h.writeEnvelope(w, status, envelope)
}
