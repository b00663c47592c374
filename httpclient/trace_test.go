package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "given nil, then empty", err: nil, want: ""},
		{name: "given canceled, then cancelled", err: context.Canceled, want: ErrorTypeCancelled},
		{name: "given a deadline, then timeout", err: fmt.Errorf("read: %w", context.DeadlineExceeded), want: ErrorTypeTimeout},
		{name: "given a DNS error, then dns_error", err: &net.DNSError{Err: "no such host", Name: "x.invalid"}, want: ErrorTypeDNSError},
		{name: "given a net timeout, then timeout", err: timeoutErr{}, want: ErrorTypeTimeout},
		{name: "given a TLS record error, then tls_error", err: &tls.RecordHeaderError{Msg: "bad record"}, want: ErrorTypeTLSError},
		{name: "given connection refused, then connection_refused", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: ErrorTypeConnectionRefused},
		{name: "given connection reset, then connection_reset", err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: ErrorTypeConnectionReset},
		{name: "given unexpected EOF, then eof", err: io.ErrUnexpectedEOF, want: ErrorTypeEOF},
		{name: "given a flattened x509 message, then tls_error", err: errors.New("x509: certificate signed by unknown authority"), want: ErrorTypeTLSError},
		{name: "given an unknown error, then unknown", err: errors.New("boom"), want: ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyError(tt.err))
		})
	}
}

func TestErrorTypeFromStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", errorTypeFromStatusCode(200))
	assert.Equal(t, "", errorTypeFromStatusCode(302))
	assert.Equal(t, "404", errorTypeFromStatusCode(404))
	assert.Equal(t, "503", errorTypeFromStatusCode(503))
}

func newTracedConfig(t *testing.T, opts ...Option) (*internalConfig, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return newConfig(append([]Option{WithTracerProvider(tp)}, opts...)...), exporter
}

func TestOtelTransport_SpanEndsWithBody(t *testing.T) {
	t.Parallel()

	cfg, exporter := newTracedConfig(t, WithServiceName("orders"))
	mock := NewMockTransport().StubChunks("/items", http.StatusNotFound, "not ", "found")
	rt := newOtelTransport(mock, cfg)

	req, err := http.NewRequest(http.MethodGet, "http://api.test/items", nil)
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	assert.Empty(t, exporter.GetSpans(), "span stays open until the body is done")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "not found", string(body))
	require.NoError(t, resp.Body.Close())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "HTTP GET", span.Name)
	assert.Equal(t, codes.Error, span.Status.Code)
	assert.Equal(t, "HTTP 404", span.Status.Description)

	attrs := make(map[string]string)
	for _, kv := range span.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "orders", attrs["http.client.name"])
	assert.Equal(t, "404", attrs["error.type"])
	assert.Equal(t, "404", attrs["http.response.status_code"])
	assert.Equal(t, "api.test", attrs["server.address"])
	assert.Equal(t, "80", attrs["server.port"])

	last, ok := mock.LastRequest()
	require.True(t, ok)
	assert.NotEmpty(t, last.Header.Get("Traceparent"))
	assert.Empty(t, req.Header.Get("Traceparent"), "caller header must stay untouched")
}

func TestOtelTransport_RoundTripError(t *testing.T) {
	t.Parallel()

	cfg, exporter := newTracedConfig(t, WithSpanNameFormatter(func(method string, r *http.Request) string {
		return method + " " + r.URL.Path
	}))
	mock := NewMockTransport().StubError(&net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})
	rt := newOtelTransport(mock, cfg)

	req, err := http.NewRequest(http.MethodPost, "https://api.test/orders", strings.NewReader("{}"))
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.Error(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /orders", spans[0].Name)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestTracedBody_EndsOnce(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, span := tp.Tracer("test").Start(context.Background(), "body")

	var ends []int64
	b := &tracedBody{
		body:  io.NopCloser(strings.NewReader("hello")),
		span:  span,
		onEnd: func(read int64) { ends = append(ends, read) },
	}

	_, err := io.ReadAll(b)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.Equal(t, []int64{5}, ends)
	assert.Len(t, exporter.GetSpans(), 1)
}

func TestNetworkTrace_Events(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	cfg, exporter := newTracedConfig(t)
	rt := newOtelTransport(cfg.buildTransport(), cfg)

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	var names []string
	for _, ev := range spans[0].Events {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "connect.done")
	assert.Contains(t, names, "got_conn")
	assert.Contains(t, names, "got_first_response_byte")
}

func TestNetworkTrace_Disabled(t *testing.T) {
	t.Parallel()

	cfg, exporter := newTracedConfig(t, WithDisableNetworkTrace())
	rt := newOtelTransport(NewMockTransport().StubResponse(http.StatusOK, "ok"), cfg)

	req, err := http.NewRequest(http.MethodGet, "http://api.test/", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Empty(t, spans[0].Events)
}
