package api

import (
	"net/http"

	"infergate/internal/dispatcher"
	"infergate/internal/health"
	"infergate/internal/job"
	"infergate/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Submitter     *job.Submitter
	Retriever     *job.Retriever
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	Dispatcher    dispatcher.Dispatcher
	APIKey        string
}

// NewRouter wires all routes and the middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Submitter, cfg.Retriever, cfg.Metrics, cfg.HealthChecker, cfg.Dispatcher)

	mux := http.NewServeMux()

	// Probes and internal stats bypass auth; they are only reachable
	// inside the service network.
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)
	mux.HandleFunc("GET /internal/stats", handler.Stats)

	// Job endpoints require auth. The handle wildcard spans path segments
	// so encoded store URIs resolve too.
	auth := bearerAuth(cfg.APIKey)
	mux.Handle("POST /v1/jobs", auth(http.HandlerFunc(handler.SubmitJob)))
	mux.Handle("GET /v1/jobs/{handle...}", auth(http.HandlerFunc(handler.GetJob)))
	mux.Handle("POST /v1/ops", auth(http.HandlerFunc(handler.ExecuteOp)))

	mws := []Middleware{recovery(), requestLog()}
	if cfg.Metrics != nil {
		mws = append(mws, httpMetrics(cfg.Metrics))
	}
	mws = append(mws, cors(), requireJSON())

	return chain(mux, mws...)
}
