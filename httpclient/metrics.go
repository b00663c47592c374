package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Breaker request results recorded on http.client.breaker.requests.
const (
	breakerResultSuccess  = "success"
	breakerResultFailure  = "failure"
	breakerResultIgnored  = "ignored"
	breakerResultRejected = "rejected"
)

// metrics holds the metric instruments for HTTP client operations.
// A nil *metrics records nothing.
type metrics struct {
	// === Dispatch ===

	// requestDuration measures a dispatch, from sending the request until
	// the body has been streamed, in seconds.
	requestDuration metric.Float64Histogram

	requestBodySize  metric.Int64Histogram
	responseBodySize metric.Int64Histogram

	// activeRequests tracks the number of in-flight dispatches.
	activeRequests metric.Int64UpDownCounter

	// transportErrors counts dispatch failures by error.type.
	transportErrors metric.Int64Counter

	// === Network Timing ===

	connectionDuration metric.Float64Histogram
	dnsDuration        metric.Float64Histogram
	tlsDuration        metric.Float64Histogram
	ttfb               metric.Float64Histogram

	// === Calls ===

	// outcomes counts completed calls by outcome kind.
	outcomes metric.Int64Counter

	// === Circuit Breaker ===

	// breakerRequests counts gate decisions: success, failure, ignored or
	// rejected.
	breakerRequests metric.Int64Counter

	// breakerState is 0 for closed, 1 for half-open and 2 for open.
	breakerState metric.Int64Gauge
}

var (
	latencyBuckets = []float64{
		0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
	}
	networkBuckets = []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
	}
	sizeBuckets = []float64{
		0, 100, 1024, 10 * 1024, 100 * 1024, 1024 * 1024, 10 * 1024 * 1024,
	}
)

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	if m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if m.requestBodySize, err = meter.Int64Histogram(
		"http.client.request.body.size",
		metric.WithDescription("Size of HTTP client request bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, err
	}

	if m.responseBodySize, err = meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of streamed HTTP client response bodies in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(sizeBuckets...),
	); err != nil {
		return nil, err
	}

	if m.activeRequests, err = meter.Int64UpDownCounter(
		"http.client.active_requests",
		metric.WithDescription("Number of active HTTP client requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.transportErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP client transport errors"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.connectionDuration, err = meter.Float64Histogram(
		"http.client.connection.duration",
		metric.WithDescription("Time to establish HTTP connection in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(networkBuckets...),
	); err != nil {
		return nil, err
	}

	if m.dnsDuration, err = meter.Float64Histogram(
		"http.client.dns.duration",
		metric.WithDescription("DNS lookup duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(networkBuckets...),
	); err != nil {
		return nil, err
	}

	if m.tlsDuration, err = meter.Float64Histogram(
		"http.client.tls.duration",
		metric.WithDescription("TLS handshake duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(networkBuckets...),
	); err != nil {
		return nil, err
	}

	if m.ttfb, err = meter.Float64Histogram(
		"http.client.ttfb",
		metric.WithDescription("Time to first response byte in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if m.outcomes, err = meter.Int64Counter(
		"http.client.outcomes",
		metric.WithDescription("Number of completed calls by outcome kind"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}

	if m.breakerRequests, err = meter.Int64Counter(
		"http.client.breaker.requests",
		metric.WithDescription("Circuit breaker decisions by result"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.breakerState, err = meter.Int64Gauge(
		"http.client.breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=half-open, 2=open)"),
		metric.WithUnit("{state}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metrics) recordRequestDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordRequestBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.requestBodySize == nil {
		return
	}
	m.requestBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordResponseBodySize(ctx context.Context, size int64, attrs []attribute.KeyValue) {
	if m == nil || m.responseBodySize == nil {
		return
	}
	m.responseBodySize.Record(ctx, size, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestStart(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metrics) recordActiveRequestEnd(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.activeRequests == nil {
		return
	}
	m.activeRequests.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// recordTransportError records a dispatch failure.
func (m *metrics) recordTransportError(ctx context.Context, errorType string, attrs []attribute.KeyValue) {
	if m == nil || m.transportErrors == nil {
		return
	}
	m.transportErrors.Add(ctx, 1, metric.WithAttributes(
		withAttr(attrs, attribute.String("error.type", errorType))...,
	))
}

func (m *metrics) recordConnectionDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.connectionDuration == nil {
		return
	}
	m.connectionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordDNSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.dnsDuration == nil {
		return
	}
	m.dnsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTLSDuration(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.tlsDuration == nil {
		return
	}
	m.tlsDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func (m *metrics) recordTTFB(ctx context.Context, d time.Duration, attrs []attribute.KeyValue) {
	if m == nil || m.ttfb == nil {
		return
	}
	m.ttfb.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

// recordOutcome counts a completed call under its outcome kind.
func (m *metrics) recordOutcome(ctx context.Context, kind OutcomeKind, attrs []attribute.KeyValue) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		withAttr(attrs, attribute.String("outcome.kind", kind.String()))...,
	))
}

// recordBreakerRequest counts one gate decision.
func (m *metrics) recordBreakerRequest(ctx context.Context, name, result string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.result", result),
	))
}

// recordBreakerState records the breaker state after a transition.
func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(
		attribute.String("breaker.name", name),
	))
}

func withAttr(attrs []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	all := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	all = append(all, attrs...)
	return append(all, extra...)
}
