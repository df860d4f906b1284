// Package backoff provides retry delay calculation.
package backoff

import (
	"math"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial time.Duration // delay before the first retry (default: 100ms)
	Max     time.Duration // cap on the computed delay (default: 5s)
}

// Duration returns the delay before the given retry attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on,
// capped at Max.
func (c Config) Duration(attempt int) time.Duration {
	initial := c.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	maxDelay := c.Max
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}

// Exponential calculates exponential backoff for a given attempt using
// an optional config. A nil config uses the defaults.
func Exponential(attempt int, cfg *Config) time.Duration {
	if cfg == nil {
		return Config{}.Duration(attempt)
	}
	return cfg.Duration(attempt)
}
