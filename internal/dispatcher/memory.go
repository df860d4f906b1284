package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"infergate/pkg/backoff"
	"infergate/pkg/circuitbreaker"
	"infergate/pkg/cloudevent"
)

const (
	deliveryTimeout  = 30 * time.Second
	queueDepthPeriod = 5 * time.Second
)

// counters tracks delivery outcomes for Stats. All fields are atomics so
// workers update them without locking.
type counters struct {
	queued    atomic.Int64
	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	requeued  atomic.Int64
	retries   atomic.Int64
}

// MemoryDispatcher delivers events from a bounded in-memory queue using a
// pool of worker goroutines. When the queue is full new events are dropped
// rather than blocking the caller; a per-destination circuit breaker defers
// delivery to hosts that keep failing.
type MemoryDispatcher struct {
	queue    chan *Event
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	config   MemoryConfig
	logger   *slog.Logger
	metrics  MetricsRecorder

	counts counters

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// MetricsRecorder receives dispatcher delivery metrics. A nil recorder
// disables metric reporting.
type MetricsRecorder interface {
	RecordDispatcherDelivered(ctx context.Context, durationSeconds float64)
	RecordDispatcherFailed(ctx context.Context)
	RecordDispatcherDropped(ctx context.Context)
	RecordDispatcherRequeued(ctx context.Context)
	RecordDispatcherQueueSize(ctx context.Context, size int64)
}

// NewMemory creates an in-memory dispatcher and starts its workers.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) *MemoryDispatcher {
	cfg = cfg.withDefaults()

	d := &MemoryDispatcher{
		queue:  make(chan *Event, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		config:   cfg,
		logger:   slog.With("component", "dispatcher"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	d.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go d.run()
	}
	if metrics != nil {
		go d.pollQueueDepth()
	}

	d.logger.Info("Dispatcher started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return d
}

// Dispatch queues an event without blocking. A full queue drops the event
// and returns ErrBufferFull.
func (d *MemoryDispatcher) Dispatch(event *Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	select {
	case d.queue <- event:
		d.counts.queued.Add(1)
		return nil
	default:
	}

	d.drop(event, "buffer full")
	return ErrBufferFull
}

// Stats returns a snapshot of delivery counters and breaker state.
func (d *MemoryDispatcher) Stats() Stats {
	bs := d.breakers.Stats()
	return Stats{
		QueueDepth:    len(d.queue),
		Queued:        d.counts.queued.Load(),
		Delivered:     d.counts.delivered.Load(),
		Failed:        d.counts.failed.Load(),
		Dropped:       d.counts.dropped.Load(),
		Requeued:      d.counts.requeued.Load(),
		RetriesTotal:  d.counts.retries.Load(),
		BreakersTotal: bs.Total,
		BreakersOpen:  bs.Open,
	}
}

// Close stops accepting events and waits for the workers to flush whatever
// is still queued, up to the context deadline.
func (d *MemoryDispatcher) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	d.logger.Info("Dispatcher shutting down", "queued", len(d.queue))
	close(d.shutdown)

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("Dispatcher shutdown complete",
			"delivered", d.counts.delivered.Load(),
			"failed", d.counts.failed.Load(),
			"dropped", d.counts.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		d.logger.Warn("Dispatcher shutdown timed out", "remaining", len(d.queue))
		return ctx.Err()
	}
}

// run is the worker loop. On shutdown each worker keeps pulling from the
// queue until it is empty, so queued events get a final delivery attempt.
func (d *MemoryDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.shutdown:
			for {
				select {
				case event := <-d.queue:
					d.deliver(event)
				default:
					return
				}
			}
		}
	}
}

func (d *MemoryDispatcher) deliver(event *Event) {
	key := destinationKey(event.Destination)
	breaker := d.breakers.Get(key)
	if !breaker.Allow() {
		d.park(event, key)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	start := time.Now()
	err := d.send(ctx, event)
	if err != nil {
		breaker.RecordFailure()
		d.counts.failed.Add(1)
		if d.metrics != nil {
			d.metrics.RecordDispatcherFailed(ctx)
		}
		d.logger.Warn("Delivery failed", "destination", key, "type", event.Payload.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	d.counts.delivered.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDelivered(ctx, time.Since(start).Seconds())
	}
}

// send posts the event, retrying transient failures with exponential
// backoff. Client errors (4xx) are not retried: the destination rejected
// the payload and will keep rejecting it.
func (d *MemoryDispatcher) send(ctx context.Context, event *Event) error {
	var lastErr error
	for attempt := 0; attempt <= defaultMaxRetries; attempt++ {
		if attempt > 0 {
			d.counts.retries.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, nil)):
			}
		}

		lastErr = d.sender.Send(ctx, event.Destination, event.Payload, event.SigningKey)
		if lastErr == nil || cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// park re-queues an event whose destination breaker is open, after the
// breaker cooldown. Events that cycle too many times are dropped.
func (d *MemoryDispatcher) park(event *Event, key string) {
	if event.Requeues >= defaultMaxRequeues {
		d.drop(event, "max requeues reached")
		return
	}

	event.Requeues++
	d.counts.requeued.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherRequeued(context.Background())
	}

	go func() {
		select {
		case <-d.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case d.queue <- event:
			d.logger.Debug("Event requeued", "destination", key, "type", event.Payload.Type, "requeues", event.Requeues)
		case <-d.shutdown:
		default:
			d.drop(event, "buffer full on requeue")
		}
	}()
}

func (d *MemoryDispatcher) drop(event *Event, reason string) {
	d.counts.dropped.Add(1)
	if d.metrics != nil {
		d.metrics.RecordDispatcherDropped(context.Background())
	}
	d.logger.Warn("Event dropped",
		"reason", reason,
		"destination", destinationKey(event.Destination),
		"type", event.Payload.Type,
	)
}

func (d *MemoryDispatcher) pollQueueDepth() {
	ticker := time.NewTicker(queueDepthPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-d.shutdown:
			return
		case <-ticker.C:
			d.metrics.RecordDispatcherQueueSize(context.Background(), int64(len(d.queue)))
		}
	}
}

// destinationKey reduces a callback URL to its host so breakers are shared
// across paths on the same endpoint. Unparseable URLs key on the raw string.
func destinationKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ Dispatcher = (*MemoryDispatcher)(nil)
