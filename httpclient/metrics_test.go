package httpclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	t.Parallel()

	var m *metrics
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.recordRequestDuration(ctx, time.Second, nil)
		m.recordRequestBodySize(ctx, 10, nil)
		m.recordResponseBodySize(ctx, 10, nil)
		m.recordActiveRequestStart(ctx, nil)
		m.recordActiveRequestEnd(ctx, nil)
		m.recordTransportError(ctx, ErrorTypeTimeout, nil)
		m.recordConnectionDuration(ctx, time.Millisecond, nil)
		m.recordDNSDuration(ctx, time.Millisecond, nil)
		m.recordTLSDuration(ctx, time.Millisecond, nil)
		m.recordTTFB(ctx, time.Millisecond, nil)
		m.recordOutcome(ctx, KindSuccess, nil)
		m.recordBreakerRequest(ctx, "svc", breakerResultSuccess)
		m.recordBreakerState(ctx, "svc", 0)
	})
}

func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestMetrics_Recorded(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := newMetrics(mp.Meter(scope))
	require.NoError(t, err)

	ctx := context.Background()
	attrs := []attribute.KeyValue{attribute.String("http.client.name", "orders")}

	m.recordRequestDuration(ctx, 20*time.Millisecond, attrs)
	m.recordActiveRequestStart(ctx, attrs)
	m.recordActiveRequestStart(ctx, attrs)
	m.recordActiveRequestEnd(ctx, attrs)
	m.recordTransportError(ctx, ErrorTypeConnectionRefused, attrs)
	m.recordOutcome(ctx, KindServerError, attrs)
	m.recordBreakerState(ctx, "orders", 2)

	got := collectMetrics(t, reader)

	duration, ok := got["http.client.request.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, duration.DataPoints, 1)
	assert.Equal(t, uint64(1), duration.DataPoints[0].Count)

	active, ok := got["http.client.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(1), active.DataPoints[0].Value)

	errs, ok := got["http.client.request.error"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	errType, _ := errs.DataPoints[0].Attributes.Value("error.type")
	assert.Equal(t, ErrorTypeConnectionRefused, errType.AsString())

	outcomes, ok := got["http.client.outcomes"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, outcomes.DataPoints, 1)
	kind, _ := outcomes.DataPoints[0].Attributes.Value("outcome.kind")
	assert.Equal(t, "server_error", kind.AsString())
	name, _ := outcomes.DataPoints[0].Attributes.Value("http.client.name")
	assert.Equal(t, "orders", name.AsString())

	state, ok := got["http.client.breaker.state"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, state.DataPoints, 1)
	assert.Equal(t, int64(2), state.DataPoints[0].Value)
}

func TestClient_TransportMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	mock := NewMockTransport().StubChunks("/stream", http.StatusOK, "ab", "cd", "e")

	client := New(WithMockTransport(mock), WithMeterProvider(mp), WithBaseURL("http://api.test"))
	body, err := Get(context.Background(), client, "/stream", NoContent(), Bytes()).Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(body))

	got := collectMetrics(t, reader)

	size, ok := got["http.client.response.body.size"].Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, size.DataPoints, 1)
	assert.Equal(t, int64(5), size.DataPoints[0].Sum)

	active, ok := got["http.client.active_requests"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Zero(t, active.DataPoints[0].Value)
}
