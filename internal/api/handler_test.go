package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"infergate/internal/backend"
	"infergate/internal/health"
	"infergate/internal/job"
	"infergate/internal/store"
	"infergate/internal/storepath"
)

const testBucket = "inference-bucket"

func testLayout() storepath.Layout {
	return storepath.Layout{
		Bucket:        testBucket,
		InputPrefix:   "inputs",
		OutputPrefix:  "outputs",
		FailurePrefix: "failures",
	}
}

// echoInvoker acknowledges every invocation with the proposed id.
type echoInvoker struct{}

func (echoInvoker) InvokeAsync(ctx context.Context, in *backend.InvokeInput) (*backend.InvokeOutput, error) {
	return &backend.InvokeOutput{
		InferenceID:    in.InferenceID,
		OutputLocation: "s3://" + testBucket + "/outputs/" + in.InferenceID + ".out",
	}, nil
}

type envelope struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
}

func newTestRouter(t *testing.T, mem *store.Memory, apiKey string) http.Handler {
	t.Helper()
	layout := testLayout()
	submitter := job.NewSubmitter(mem, echoInvoker{}, job.SubmitterConfig{Layout: layout}, nil, nil)
	retriever := job.NewRetriever(mem, job.RetrieverConfig{Layout: layout}, nil, nil)
	checker := health.NewChecker(health.ReadyFunc(func(ctx context.Context) error {
		return mem.Ready(ctx, testBucket)
	}))
	return NewRouter(RouterConfig{
		Submitter:     submitter,
		Retriever:     retriever,
		HealthChecker: checker,
		APIKey:        apiKey,
	})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]string{"sequence": "MKTVRQERLK"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	if jobID, _ := env.Data["job_id"].(string); jobID == "" {
		t.Error("expected a job_id")
	}
	if env.Data["status"] != "submitted" {
		t.Errorf("expected submitted status, got %v", env.Data["status"])
	}
	if env.Data["estimated_time_minutes"] != float64(1) {
		t.Errorf("expected 1 minute estimate, got %v", env.Data["estimated_time_minutes"])
	}
}

func TestSubmitJobInvalidSequence(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]string{"sequence": "MKTVRQERLKXZ"})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Success {
		t.Fatal("expected failure envelope")
	}
	if env.ErrorCode != "INVALID_SEQUENCE" {
		t.Errorf("expected INVALID_SEQUENCE, got %s", env.ErrorCode)
	}
	violations, _ := env.Details["violations"].([]any)
	if len(violations) != 1 {
		t.Errorf("expected one violation, got %v", env.Details)
	}
}

func TestSubmitJobMalformedBody(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetJobInProgress(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/job-1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got %+v", env)
	}
	if env.Data["status"] != "in_progress" {
		t.Errorf("expected in_progress, got %v", env.Data["status"])
	}
	if env.Data["check_interval_seconds"] != float64(30) {
		t.Errorf("expected 30s check interval, got %v", env.Data["check_interval_seconds"])
	}
}

func TestGetJobCompleted(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	key := testLayout().Key("job-1", storepath.KindOutput)
	if err := mem.Put(context.Background(), testBucket, key, []byte(`{"confidence":0.9}`), "application/json"); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/job-1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.Data["status"] != "completed" {
		t.Errorf("expected completed, got %v", env.Data["status"])
	}
	result, _ := env.Data["result"].(map[string]any)
	if result["confidence"] != 0.9 {
		t.Errorf("expected result payload, got %v", env.Data["result"])
	}
}

func TestGetJobFailed(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	key := testLayout().Key("job-1", storepath.KindFailure)
	if err := mem.Put(context.Background(), testBucket, key, []byte("CUDA out of memory"), "text/plain"); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/job-1", nil)

	// Failed jobs are reported in the envelope, not via HTTP status.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.Success {
		t.Fatal("expected failure envelope")
	}
	if env.ErrorCode != "PREDICTION_FAILED" {
		t.Errorf("expected PREDICTION_FAILED, got %s", env.ErrorCode)
	}
	if env.Message != "CUDA out of memory" {
		t.Errorf("expected diagnostics in message, got %q", env.Message)
	}
	if env.Details["job_id"] != "job-1" {
		t.Errorf("expected job_id detail, got %v", env.Details)
	}
	details, _ := env.Details["error_details"].(map[string]any)
	if details["raw_output"] != "CUDA out of memory" {
		t.Errorf("expected error_details with raw text, got %v", env.Details["error_details"])
	}
	if ft, _ := env.Details["failure_time"].(string); ft == "" {
		t.Errorf("expected failure_time detail, got %v", env.Details)
	}
}

func TestGetJobFailedStructuredDiagnostics(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	key := testLayout().Key("job-1", storepath.KindFailure)
	body := []byte(`{"error_type":"ModelError","error_message":"CUDA out of memory"}`)
	if err := mem.Put(context.Background(), testBucket, key, body, "application/json"); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/job-1", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.Message != "CUDA out of memory" {
		t.Errorf("expected error_message as envelope message, got %q", env.Message)
	}
	details, _ := env.Details["error_details"].(map[string]any)
	if details["error_type"] != "ModelError" {
		t.Errorf("expected structured error_details, got %v", env.Details["error_details"])
	}
}

func TestGetJobByEncodedURIHandle(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	key := testLayout().Key("job-1", storepath.KindOutput)
	if err := mem.Put(context.Background(), testBucket, key, []byte(`{"ok":true}`), "application/json"); err != nil {
		t.Fatal(err)
	}
	router := newTestRouter(t, mem, "")

	handle := url.PathEscape("s3://" + testBucket + "/outputs/job-1.out")
	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/"+handle, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if env.Data["status"] != "completed" {
		t.Errorf("expected completed, got %v", env.Data["status"])
	}
	if env.Data["job_id"] != "job-1" {
		t.Errorf("expected job-1, got %v", env.Data["job_id"])
	}
}

func TestGetJobInvalidHandle(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	handle := url.PathEscape("s3://bucket-only")
	rec, env := doJSON(t, router, http.MethodGet, "/v1/jobs/"+handle, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.ErrorCode != "INVALID_HANDLE_FORMAT" {
		t.Errorf("expected INVALID_HANDLE_FORMAT, got %s", env.ErrorCode)
	}
}

func TestExecuteOpSubmit(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/ops", map[string]any{
		"operation": "proteinfold___submit_sequence",
		"payload":   map[string]any{"sequence": "MKTVRQERLK"},
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	jobID, _ := env.Data["job_id"].(string)
	if !env.Success || jobID == "" {
		t.Errorf("expected submission envelope, got %+v", env)
	}
}

func TestExecuteOpGetResult(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/ops", map[string]any{
		"operation": "get_result",
		"payload":   map[string]any{"job_id": "job-1"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env.Data["status"] != "in_progress" {
		t.Errorf("expected in_progress, got %v", env.Data["status"])
	}
}

func TestExecuteOpUnknown(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/ops", map[string]any{
		"operation": "drop_database",
		"payload":   map[string]any{},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.ErrorCode != "UNKNOWN_OPERATION" {
		t.Errorf("expected UNKNOWN_OPERATION, got %s", env.ErrorCode)
	}
}

func TestExecuteOpNonStringSequence(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	rec, env := doJSON(t, router, http.MethodPost, "/v1/ops", map[string]any{
		"operation": "submit_sequence",
		"payload":   map[string]any{"sequence": 12345},
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.ErrorCode != "INVALID_SEQUENCE" {
		t.Errorf("expected INVALID_SEQUENCE, got %s", env.ErrorCode)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "secret-key")

	// No auth header
	rec, _ := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]string{"sequence": "MKTVRQERLK"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without auth, got %d", rec.Code)
	}

	// Correct bearer token
	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]string{"sequence": "MKTVRQERLK"})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret-key")
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusAccepted {
		t.Errorf("expected 202 with auth, got %d", rec2.Code)
	}

	// Health endpoints bypass auth
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, httptest.NewRequest(http.MethodGet, "/livez", nil))
	if rec3.Code != http.StatusOK {
		t.Errorf("expected 200 for livez without auth, got %d", rec3.Code)
	}
}

func TestContentTypeWithCharset(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(map[string]string{"sequence": "MKTVRQERLK"})
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", &buf)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Errorf("expected charset parameter to be tolerated, got %d", rec.Code)
	}
}

func TestContentTypeRejected(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", bytes.NewBufferString("sequence=MKTVRQERLK"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Errorf("expected 415, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()
	// Healthy store
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	// Missing bucket
	broken := store.NewMemory()
	router2 := newTestRouter(t, broken, "")
	rec2 := httptest.NewRecorder()
	router2.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec2.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec2.Code)
	}
}

func TestSubmitAndRetrieveRoundTrip(t *testing.T) {
	t.Parallel()
	mem := store.NewMemory(testBucket)
	router := newTestRouter(t, mem, "")

	_, env := doJSON(t, router, http.MethodPost, "/v1/jobs", map[string]string{"sequence": "MKTVRQERLK"})
	jobID, _ := env.Data["job_id"].(string)
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	// Backend has written nothing yet.
	_, env2 := doJSON(t, router, http.MethodGet, "/v1/jobs/"+jobID, nil)
	if env2.Data["status"] != "in_progress" {
		t.Fatalf("expected in_progress, got %v", env2.Data["status"])
	}

	// Simulate the backend completing the job.
	key := testLayout().Key(jobID, storepath.KindOutput)
	if err := mem.Put(context.Background(), testBucket, key, []byte(`{"confidence":0.88}`), "application/json"); err != nil {
		t.Fatal(err)
	}

	_, env3 := doJSON(t, router, http.MethodGet, "/v1/jobs/"+jobID, nil)
	if env3.Data["status"] != "completed" {
		t.Fatalf("expected completed, got %v", env3.Data["status"])
	}
}
