// Package job implements the asynchronous job lifecycle: submission,
// result retrieval, and client-side polling. The only state shared
// with the inference backend is the object store; a job's status is
// derived entirely from which of its objects exist.
package job

import "time"

// Status values derived from the store.
const (
	StatusSubmitted  = "submitted"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Submission is the acknowledgement returned for an accepted job. The
// JobID is the backend's authoritative correlation identifier and the
// handle callers use to retrieve the result later.
type Submission struct {
	JobID            string `json:"job_id"`
	Status           string `json:"status"`
	InputLocation    string `json:"input_location"`
	OutputLocation   string `json:"output_location"`
	EstimatedMinutes int    `json:"estimated_time_minutes"`
	Message          string `json:"message"`
}

// Result is one observation of a job's state.
//
// Warnings carry transient store trouble encountered while probing;
// they never fail the retrieval and the caller is expected to poll
// again.
type Result struct {
	JobID                string         `json:"job_id"`
	Status               string         `json:"status"`
	Payload              map[string]any `json:"result,omitempty"`
	Error                string         `json:"error,omitempty"`
	ErrorDetails         map[string]any `json:"error_details,omitempty"`
	Message              string         `json:"message,omitempty"`
	CompletionTime       string         `json:"completion_time,omitempty"`
	FailureTime          string         `json:"failure_time,omitempty"`
	CheckIntervalSeconds int            `json:"check_interval_seconds,omitempty"`
	Warnings             []string       `json:"warnings,omitempty"`
}

// Envelope is the wire format every API response is wrapped in.
// Success responses carry Data; failures carry ErrorCode, Message and
// optionally Details.
type Envelope struct {
	Success   bool           `json:"success"`
	Data      any            `json:"data,omitempty"`
	ErrorCode string         `json:"error_code,omitempty"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EstimateMinutes estimates completion time for a sequence of the
// given length. Roughly 600 residues per minute, never less than one
// minute.
func EstimateMinutes(sequenceLength int) int {
	est := sequenceLength/600 + 1
	if est < 1 {
		est = 1
	}
	return est
}
