package job

import (
	"context"
	"log/slog"
	"time"

	"infergate/internal/apperrors"
	"infergate/pkg/backoff"
)

// PollState is the terminal (or current) state of a polling loop.
type PollState string

const (
	StatePolling   PollState = "polling"
	StateCompleted PollState = "completed"
	StateFailed    PollState = "failed"
	StateTimedOut  PollState = "timed_out"
	StateAborted   PollState = "aborted_on_fatal_error"
)

// ResultGetter is the probe the poller drives. Both the in-process
// Retriever and the HTTP gateway client satisfy it.
type ResultGetter interface {
	Get(ctx context.Context, handle string) (*Result, error)
}

// PollerConfig tunes the polling loop. MaxAttempts is always enforced:
// a zero or negative value falls back to the default rather than
// polling forever.
type PollerConfig struct {
	Interval                time.Duration // default: 30s
	MaxAttempts             int           // default: 120
	MaxConsecutiveTransient int           // default: 5
}

func (c PollerConfig) withDefaults() PollerConfig {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 120
	}
	if c.MaxConsecutiveTransient <= 0 {
		c.MaxConsecutiveTransient = 5
	}
	return c
}

// Outcome reports how a polling loop ended.
type Outcome struct {
	State    PollState
	Result   *Result // set when State is StateCompleted or StateFailed
	Attempts int
	Err      error // set when State is StateAborted
}

// Poller repeatedly probes a job until it reaches a terminal state,
// the attempt budget is exhausted, or a fatal error occurs.
type Poller struct {
	getter ResultGetter
	config PollerConfig
	logger *slog.Logger
}

// NewPoller creates a Poller.
func NewPoller(getter ResultGetter, cfg PollerConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{getter: getter, config: cfg.withDefaults(), logger: logger}
}

// Poll drives the loop for handle. Transient retrieval errors are
// tolerated up to MaxConsecutiveTransient in a row; fatal errors abort
// immediately. Exactly MaxAttempts probes are made before giving up
// with StateTimedOut.
func (p *Poller) Poll(ctx context.Context, handle string) (*Outcome, error) {
	cfg := p.config
	consecutiveTransient := 0

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &Outcome{State: StateAborted, Attempts: attempt - 1, Err: err}, err
		}

		result, err := p.getter.Get(ctx, handle)
		if err != nil {
			if !apperrors.Retryable(err) {
				p.logger.Error("Polling aborted",
					slog.String("handle", handle),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()))
				return &Outcome{State: StateAborted, Attempts: attempt, Err: err}, err
			}

			consecutiveTransient++
			if consecutiveTransient > cfg.MaxConsecutiveTransient {
				p.logger.Error("Polling aborted, too many consecutive transient errors",
					slog.String("handle", handle),
					slog.Int("attempt", attempt),
					slog.Int("consecutive", consecutiveTransient))
				return &Outcome{State: StateAborted, Attempts: attempt, Err: err}, err
			}

			p.logger.Warn("Transient error while polling, will retry",
				slog.String("handle", handle),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))

			if attempt < cfg.MaxAttempts {
				if err := p.sleep(ctx, p.wait(nil, consecutiveTransient, err)); err != nil {
					return &Outcome{State: StateAborted, Attempts: attempt, Err: err}, err
				}
			}
			continue
		}
		consecutiveTransient = 0

		for _, warning := range result.Warnings {
			p.logger.Warn("Retrieval warning",
				slog.String("handle", handle),
				slog.Int("attempt", attempt),
				slog.String("warning", warning))
		}

		switch result.Status {
		case StatusCompleted:
			return &Outcome{State: StateCompleted, Result: result, Attempts: attempt}, nil
		case StatusFailed:
			return &Outcome{State: StateFailed, Result: result, Attempts: attempt}, nil
		}

		if attempt < cfg.MaxAttempts {
			if err := p.sleep(ctx, p.wait(result, 0, nil)); err != nil {
				return &Outcome{State: StateAborted, Attempts: attempt, Err: err}, err
			}
		}
	}

	p.logger.Warn("Polling gave up",
		slog.String("handle", handle),
		slog.Int("attempts", cfg.MaxAttempts))
	return &Outcome{State: StateTimedOut, Attempts: cfg.MaxAttempts}, nil
}

// wait computes the delay before the next probe. The job's suggested
// interval is honored up to the configured interval, never beyond it:
// the caller's Interval and MaxAttempts together bound the total wall
// time, and a server suggestion must not stretch that budget. Transient
// error streaks add exponential damping on top of the base interval,
// and a transient error carrying its own retry hint wins outright.
func (p *Poller) wait(result *Result, consecutiveTransient int, transientErr error) time.Duration {
	if transientErr != nil {
		if after := apperrors.RetryAfter(transientErr); after > 0 {
			return after
		}
		return p.config.Interval + backoff.Exponential(consecutiveTransient, nil)
	}
	if result != nil && result.CheckIntervalSeconds > 0 {
		suggested := time.Duration(result.CheckIntervalSeconds) * time.Second
		if suggested < p.config.Interval {
			return suggested
		}
	}
	return p.config.Interval
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
