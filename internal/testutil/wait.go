// Package testutil provides polling helpers for asynchronous tests.
package testutil

import (
	"testing"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultInterval = 50 * time.Millisecond
)

// WaitOption adjusts polling behavior.
type WaitOption func(*waitOptions)

type waitOptions struct {
	timeout  time.Duration
	interval time.Duration
}

// WithTimeout sets the maximum wait time (default: 30s).
func WithTimeout(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.timeout = d }
}

// WithInterval sets the polling interval (default: 50ms).
func WithInterval(d time.Duration) WaitOption {
	return func(o *waitOptions) { o.interval = d }
}

// WaitFor polls until condition returns true or the timeout elapses.
// Returns whether the condition was met. The condition is always
// checked at least once, even with a zero timeout.
func WaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) bool {
	tb.Helper()

	o := waitOptions{timeout: defaultTimeout, interval: defaultInterval}
	for _, opt := range opts {
		opt(&o)
	}

	deadline := time.Now().Add(o.timeout)
	for {
		if condition() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(o.interval)
	}
}

// MustWaitFor polls until condition returns true, failing the test on timeout.
func MustWaitFor(tb testing.TB, condition func() bool, opts ...WaitOption) {
	tb.Helper()
	if !WaitFor(tb, condition, opts...) {
		tb.Fatal("timed out waiting for condition")
	}
}
