package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ http.RoundTripper = (*otelTransport)(nil)

// otelTransport wraps an http.RoundTripper with OpenTelemetry instrumentation.
//
// The span and the duration measurement cover the whole exchange: they end
// when the response body has been streamed to EOF, fails, or is closed.
type otelTransport struct {
	base http.RoundTripper
	cfg  *internalConfig
}

func newOtelTransport(base http.RoundTripper, cfg *internalConfig) *otelTransport {
	return &otelTransport{base: base, cfg: cfg}
}

// Unwrap returns the wrapped round tripper.
func (t *otelTransport) Unwrap() http.RoundTripper {
	return t.base
}

// RoundTrip implements http.RoundTripper with tracing and metrics.
func (t *otelTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	spanName := "HTTP " + req.Method
	if t.cfg.SpanNameFormatter != nil {
		spanName = t.cfg.SpanNameFormatter(req.Method, req)
	}

	ctx, span := t.cfg.Tracer.Start(req.Context(), spanName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(t.requestAttributes(req)...),
	)

	// Inject on a copy so the caller's header map stays untouched.
	req = req.Clone(ctx)
	t.cfg.Propagators.Inject(ctx, propagation.HeaderCarrier(req.Header))

	baseAttrs := t.cfg.baseAttributes()
	t.cfg.Metrics.recordActiveRequestStart(ctx, baseAttrs)

	if req.ContentLength > 0 {
		t.cfg.Metrics.recordRequestBodySize(ctx, req.ContentLength, baseAttrs)
	}

	var nt *networkTrace
	if t.cfg.EnableNetworkTrace {
		nt = &networkTrace{}
		req = req.WithContext(httptrace.WithClientTrace(ctx, nt.clientTrace()))
	}

	resp, err := t.base.RoundTrip(req)

	if nt != nil {
		nt.annotate(span)
		nt.record(ctx, t.cfg.Metrics, baseAttrs)
	}

	if err != nil {
		errorType := classifyError(err)
		setSpanError(span, err, errorType)
		t.cfg.Metrics.recordTransportError(ctx, errorType, baseAttrs)
		t.cfg.Metrics.recordRequestDuration(ctx, time.Since(start),
			withAttr(t.metricAttributes(req), attribute.String("error.type", errorType)))
		t.cfg.Metrics.recordActiveRequestEnd(ctx, baseAttrs)
		span.End()
		return nil, err
	}

	span.SetAttributes(responseAttributes(resp)...)
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", resp.StatusCode))
		span.SetAttributes(attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}

	durationAttrs := withAttr(t.metricAttributes(req),
		attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		durationAttrs = append(durationAttrs,
			attribute.String("error.type", errorTypeFromStatusCode(resp.StatusCode)))
	}

	resp.Body = &tracedBody{
		body: resp.Body,
		span: span,
		onEnd: func(read int64) {
			t.cfg.Metrics.recordResponseBodySize(ctx, read, baseAttrs)
			t.cfg.Metrics.recordRequestDuration(ctx, time.Since(start), durationAttrs)
			t.cfg.Metrics.recordActiveRequestEnd(ctx, baseAttrs)
		},
	}

	return resp, nil
}

// requestAttributes returns span attributes for the request.
func (t *otelTransport) requestAttributes(req *http.Request) []attribute.KeyValue {
	attrs := withAttr(t.metricAttributes(req))
	if req.URL != nil {
		attrs = append(attrs,
			attribute.String("url.full", req.URL.Redacted()),
			attribute.String("url.scheme", req.URL.Scheme),
		)
	}
	if req.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.request.body.size", req.ContentLength))
	}
	if ua := req.UserAgent(); ua != "" {
		attrs = append(attrs, attribute.String("user_agent.original", ua))
	}
	return attrs
}

// metricAttributes returns the low-cardinality attributes shared by spans
// and metrics.
func (t *otelTransport) metricAttributes(req *http.Request) []attribute.KeyValue {
	attrs := withAttr(t.cfg.baseAttributes(), attribute.String("http.request.method", req.Method))
	if req.URL == nil {
		return attrs
	}
	if host := req.URL.Hostname(); host != "" {
		attrs = append(attrs, attribute.String("server.address", host))
	}
	if port := serverPort(req); port > 0 {
		attrs = append(attrs, attribute.Int("server.port", port))
	}
	return attrs
}

func serverPort(req *http.Request) int {
	if p, err := strconv.Atoi(req.URL.Port()); err == nil {
		return p
	}
	switch req.URL.Scheme {
	case "http":
		return 80
	case "https":
		return 443
	}
	return 0
}

// responseAttributes returns span attributes for the response.
func responseAttributes(resp *http.Response) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("http.response.status_code", resp.StatusCode),
	}
	if resp.ContentLength > 0 {
		attrs = append(attrs, attribute.Int64("http.response.body.size", resp.ContentLength))
	}
	if version, ok := strings.CutPrefix(resp.Proto, "HTTP/"); ok {
		if version == "2.0" {
			version = "2"
		}
		attrs = append(attrs, attribute.String("network.protocol.version", version))
	}
	return attrs
}

// tracedBody ends the request span once the body is drained, fails or is
// closed, whichever comes first.
type tracedBody struct {
	body  io.ReadCloser
	span  trace.Span
	read  atomic.Int64
	ended atomic.Bool
	onEnd func(read int64)
}

func (b *tracedBody) Read(p []byte) (int, error) {
	n, err := b.body.Read(p)
	b.read.Add(int64(n))

	switch {
	case err == nil:
	case err == io.EOF:
		b.end()
	default:
		setSpanError(b.span, err, classifyError(err))
		b.end()
	}
	return n, err
}

func (b *tracedBody) Close() error {
	b.end()
	return b.body.Close()
}

func (b *tracedBody) end() {
	if !b.ended.CompareAndSwap(false, true) {
		return
	}
	if b.onEnd != nil {
		b.onEnd(b.read.Load())
	}
	b.span.End()
}
