// Package health implements liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"
)

const (
	probeTimeout = 5 * time.Second
	cacheTTL     = time.Second
)

// ReadinessChecker verifies a dependency is usable. The object store
// client implements it by probing the shared bucket with current
// credentials.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ReadyFunc adapts a plain function to ReadinessChecker.
type ReadyFunc func(ctx context.Context) error

func (f ReadyFunc) Ready(ctx context.Context) error { return f(ctx) }

// Status of a component or of the service overall.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult is the outcome of a single dependency check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response aggregates check outcomes for a probe.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy reports whether the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker answers liveness and readiness probes. Readiness results are
// cached briefly so probe storms don't hammer the object store.
type Checker struct {
	store ReadinessChecker

	mu           sync.RWMutex
	cached       *Response
	cachedAt     time.Time
	shuttingDown bool
}

// NewChecker builds a Checker over the given store probe.
func NewChecker(store ReadinessChecker) *Checker {
	return &Checker{store: store}
}

// Liveness reports process health only. It never touches dependencies;
// a failure here should restart the container.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness reports whether the service can take traffic. During
// shutdown it returns unhealthy so load balancers drain this instance.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cached != nil && time.Since(c.cachedAt) < cacheTTL {
		cached := c.cached
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	store := c.checkStore(ctx)
	response := &Response{
		Status: store.Status,
		Checks: map[string]CheckResult{"store": store},
	}

	c.mu.Lock()
	c.cached = response
	c.cachedAt = time.Now()
	c.mu.Unlock()

	return response
}

// SetShuttingDown flips readiness to unhealthy for the rest of the
// process lifetime.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cached = nil
}

func (c *Checker) checkStore(ctx context.Context) CheckResult {
	if c.store == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "store not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if err := c.store.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
