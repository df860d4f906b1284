// Package client provides an HTTP client for the gateway API. It
// reconstructs classified errors from response envelopes so the
// polling loop can tell retryable conditions from fatal ones.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"infergate/internal/apperrors"
	"infergate/internal/job"
)

// Client talks to a running gateway.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// New creates a Client for the gateway at baseURL. An empty apiKey
// disables authentication headers.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// Submit submits a sequence for asynchronous processing.
func (c *Client) Submit(ctx context.Context, sequence string) (*job.Submission, error) {
	env, status, err := c.do(ctx, http.MethodPost, "/v1/jobs",
		map[string]string{"sequence": sequence})
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, reconstruct(status, env)
	}

	var sub job.Submission
	if err := decodeData(env.Data, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Get retrieves the current state of a job. Implements the probe
// contract the polling loop expects: a failed job is a successful
// retrieval, not an error.
func (c *Client) Get(ctx context.Context, handle string) (*job.Result, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		if env.ErrorCode == "PREDICTION_FAILED" {
			res := &job.Result{Status: job.StatusFailed, Error: env.Message}
			if id, ok := env.Details["job_id"].(string); ok {
				res.JobID = id
			}
			if details, ok := env.Details["error_details"].(map[string]any); ok {
				res.ErrorDetails = details
			}
			if ft, ok := env.Details["failure_time"].(string); ok {
				res.FailureTime = ft
			}
			return res, nil
		}
		return nil, reconstruct(status, env)
	}

	var res job.Result
	if err := decodeData(env.Data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Stats fetches dispatcher delivery statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	env, status, err := c.do(ctx, http.MethodGet, "/internal/stats", nil)
	if err != nil {
		return nil, err
	}
	if !env.Success {
		return nil, reconstruct(status, env)
	}
	stats, _ := env.Data.(map[string]any)
	return stats, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*job.Envelope, int, error) {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, apperrors.Internal("client.do", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return nil, 0, apperrors.Internal("client.do", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, apperrors.Transient("GATEWAY_UNREACHABLE", err.Error(), 0)
	}
	defer resp.Body.Close()

	var env job.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, resp.StatusCode, apperrors.Protocol("PROTOCOL_VIOLATION",
			fmt.Sprintf("gateway returned a non-envelope response (HTTP %d)", resp.StatusCode))
	}
	return &env, resp.StatusCode, nil
}

// decodeData re-marshals the envelope's data field into a typed value.
func decodeData(data any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return apperrors.Internal("client.decode", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Protocol("PROTOCOL_VIOLATION", "gateway envelope data has unexpected shape")
	}
	return nil
}

// reconstruct rebuilds a classified error from a failure envelope so
// errors.Is works on the client side the same way it does in-process.
func reconstruct(status int, env *job.Envelope) error {
	code := env.ErrorCode
	if code == "" {
		code = "INTERNAL_ERROR"
	}

	switch {
	case status == http.StatusBadRequest:
		violations := []string{env.Message}
		if raw, ok := env.Details["violations"].([]any); ok && len(raw) > 0 {
			violations = violations[:0]
			for _, v := range raw {
				if s, ok := v.(string); ok {
					violations = append(violations, s)
				}
			}
		}
		return apperrors.Validation(code, violations)
	case status == http.StatusUnprocessableEntity:
		return apperrors.Rejected(code, env.Message)
	case status == http.StatusServiceUnavailable:
		var retryAfter time.Duration
		if secs, ok := env.Details["retry_after_seconds"].(float64); ok {
			retryAfter = time.Duration(secs) * time.Second
		}
		return apperrors.Transient(code, env.Message, retryAfter)
	case status == http.StatusBadGateway:
		return apperrors.Protocol(code, env.Message)
	case status >= 500:
		return apperrors.Internal("client", fmt.Errorf("%s: %s", code, env.Message))
	}
	return apperrors.Config(code, env.Message)
}

var _ job.ResultGetter = (*Client)(nil)
