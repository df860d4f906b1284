// Package observability provides metrics and the fire-and-forget event
// side channel. Nothing in this package ever influences control flow.
package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: how long requests and operations take
// - Traffic: request/operation throughput
// - Errors: rate of failures
// - Saturation: dispatcher queue depth
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Submission metrics
	SubmissionsTotal   metric.Int64Counter
	SubmissionDuration metric.Float64Histogram
	SequenceLength     metric.Int64Histogram

	// Retrieval metrics
	RetrievalsTotal   metric.Int64Counter
	RetrievalDuration metric.Float64Histogram

	// Dispatcher metrics (Latency, Traffic, Errors, Saturation)
	DispatcherDuration  metric.Float64Histogram
	DispatcherDelivered metric.Int64Counter
	DispatcherFailed    metric.Int64Counter
	DispatcherDropped   metric.Int64Counter
	DispatcherRequeued  metric.Int64Counter
	DispatcherQueueSize metric.Int64Gauge
}

// builder registers instruments on a meter, remembering the first
// registration error so callers check once at the end.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return c
}

func (b *builder) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name,
		metric.WithDescription(desc),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if b.err == nil {
		b.err = err
	}
	return h
}

func (b *builder) intHistogram(name, desc string, buckets ...float64) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name,
		metric.WithDescription(desc),
		metric.WithExplicitBucketBoundaries(buckets...),
	)
	if b.err == nil {
		b.err = err
	}
	return h
}

func (b *builder) gauge(name, desc string) metric.Int64Gauge {
	g, err := b.meter.Int64Gauge(name, metric.WithDescription(desc))
	if b.err == nil {
		b.err = err
	}
	return g
}

// NewMetrics registers all instruments against a Prometheus exporter and
// returns the metrics handle plus the scrape handler.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	b := &builder{meter: provider.Meter("infergate")}

	m := &Metrics{
		meter: b.meter,

		HTTPRequestDuration: b.seconds("http_request_duration_seconds",
			"HTTP request latency in seconds",
			0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
		HTTPRequestsTotal: b.counter("http_requests_total",
			"Total number of HTTP requests"),
		HTTPErrorsTotal: b.counter("http_errors_total",
			"Total number of HTTP errors (4xx and 5xx)"),

		SubmissionsTotal: b.counter("submissions_total",
			"Total number of job submissions"),
		SubmissionDuration: b.seconds("submission_duration_seconds",
			"Submission latency (store write plus backend invoke) in seconds",
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
		SequenceLength: b.intHistogram("sequence_length",
			"Length of submitted sequences",
			10, 50, 100, 250, 500, 1000, 2500, 5000, 10000),

		RetrievalsTotal: b.counter("retrievals_total",
			"Total number of result retrievals by job status"),
		RetrievalDuration: b.seconds("retrieval_duration_seconds",
			"Result retrieval latency in seconds",
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),

		DispatcherDuration: b.seconds("dispatcher_duration_seconds",
			"Event delivery latency in seconds",
			0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
		DispatcherDelivered: b.counter("dispatcher_delivered_total",
			"Total events successfully delivered"),
		DispatcherFailed: b.counter("dispatcher_failed_total",
			"Total events that failed delivery after retries"),
		DispatcherDropped: b.counter("dispatcher_dropped_total",
			"Total events dropped due to full buffer"),
		DispatcherRequeued: b.counter("dispatcher_requeued_total",
			"Total events requeued due to open circuit"),
		DispatcherQueueSize: b.gauge("dispatcher_queue_size",
			"Current dispatcher queue depth (saturation)"),
	}
	if b.err != nil {
		return nil, nil, b.err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records metrics for a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(methodAttr(method), pathAttr(path), statusAttr(statusCode))

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSubmission records a job submission attempt.
func (m *Metrics) RecordSubmission(ctx context.Context, sequenceLength int, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(successAttr(success))
	m.SubmissionsTotal.Add(ctx, 1, attrs)
	m.SubmissionDuration.Record(ctx, durationSeconds, attrs)
	if success {
		m.SequenceLength.Record(ctx, int64(sequenceLength))
	}
}

// RecordRetrieval records a result retrieval and the job status it
// observed ("in_progress", "completed", "failed", or "error").
func (m *Metrics) RecordRetrieval(ctx context.Context, jobStatus string, durationSeconds float64) {
	attrs := metric.WithAttributes(jobStatusAttr(jobStatus))
	m.RetrievalsTotal.Add(ctx, 1, attrs)
	m.RetrievalDuration.Record(ctx, durationSeconds, attrs)
}

// RecordDispatcherDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordDispatcherDelivered(ctx context.Context, durationSeconds float64) {
	m.DispatcherDelivered.Add(ctx, 1)
	m.DispatcherDuration.Record(ctx, durationSeconds)
}

// RecordDispatcherFailed records a failed event delivery.
func (m *Metrics) RecordDispatcherFailed(ctx context.Context) {
	m.DispatcherFailed.Add(ctx, 1)
}

// RecordDispatcherDropped records a dropped event.
func (m *Metrics) RecordDispatcherDropped(ctx context.Context) {
	m.DispatcherDropped.Add(ctx, 1)
}

// RecordDispatcherRequeued records a requeued event.
func (m *Metrics) RecordDispatcherRequeued(ctx context.Context) {
	m.DispatcherRequeued.Add(ctx, 1)
}

// RecordDispatcherQueueSize records the current queue size.
func (m *Metrics) RecordDispatcherQueueSize(ctx context.Context, size int64) {
	m.DispatcherQueueSize.Record(ctx, size)
}
