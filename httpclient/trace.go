package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http/httptrace"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error type classifications for the error.type attribute.
const (
	ErrorTypeTimeout           = "timeout"
	ErrorTypeConnectionRefused = "connection_refused"
	ErrorTypeDNSError          = "dns_error"
	ErrorTypeTLSError          = "tls_error"
	ErrorTypeCancelled         = "cancelled"
	ErrorTypeConnectionReset   = "connection_reset"
	ErrorTypeEOF               = "eof"
	ErrorTypeUnknown           = "unknown"
)

// phase is the start and end of one step of connection setup.
type phase struct {
	start, end time.Time
}

func (p phase) complete() bool { return !p.start.IsZero() && !p.end.IsZero() }

func (p phase) duration() time.Duration { return p.end.Sub(p.start) }

// networkTrace holds timing data collected from httptrace.ClientTrace.
// Callbacks may fire from transport goroutines, but only before RoundTrip
// returns, so the fields are read afterwards without locking.
type networkTrace struct {
	dns     phase
	connect phase
	tls     phase

	gotConn      time.Time
	wroteRequest time.Time
	firstByte    time.Time

	reused     bool
	wasIdle    bool
	remoteAddr string
	alpn       string
	dnsAddrs   []string
}

// clientTrace returns the httptrace hooks that fill nt.
func (nt *networkTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) { nt.dns.start = time.Now() },
		DNSDone: func(info httptrace.DNSDoneInfo) {
			nt.dns.end = time.Now()
			for _, addr := range info.Addrs {
				nt.dnsAddrs = append(nt.dnsAddrs, addr.String())
			}
		},
		ConnectStart: func(string, string) { nt.connect.start = time.Now() },
		ConnectDone:  func(string, string, error) { nt.connect.end = time.Now() },
		TLSHandshakeStart: func() {
			nt.tls.start = time.Now()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, _ error) {
			nt.tls.end = time.Now()
			nt.alpn = state.NegotiatedProtocol
		},
		GotConn: func(info httptrace.GotConnInfo) {
			nt.gotConn = time.Now()
			nt.reused = info.Reused
			nt.wasIdle = info.WasIdle
			if info.Conn != nil && info.Conn.RemoteAddr() != nil {
				nt.remoteAddr = info.Conn.RemoteAddr().String()
			}
		},
		WroteRequest:         func(httptrace.WroteRequestInfo) { nt.wroteRequest = time.Now() },
		GotFirstResponseByte: func() { nt.firstByte = time.Now() },
	}
}

// annotate adds one span event per completed network phase.
func (nt *networkTrace) annotate(span trace.Span) {
	if nt.dns.complete() {
		span.AddEvent("dns.done", trace.WithTimestamp(nt.dns.end), trace.WithAttributes(
			attribute.Int64("dns.duration_ms", nt.dns.duration().Milliseconds()),
			attribute.StringSlice("dns.addresses", nt.dnsAddrs),
		))
	}
	if nt.connect.complete() {
		span.AddEvent("connect.done", trace.WithTimestamp(nt.connect.end), trace.WithAttributes(
			attribute.Int64("connect.duration_ms", nt.connect.duration().Milliseconds()),
		))
	}
	if nt.tls.complete() {
		span.AddEvent("tls.done", trace.WithTimestamp(nt.tls.end), trace.WithAttributes(
			attribute.Int64("tls.duration_ms", nt.tls.duration().Milliseconds()),
			attribute.String("tls.protocol", nt.alpn),
		))
	}
	if !nt.gotConn.IsZero() {
		span.AddEvent("got_conn", trace.WithTimestamp(nt.gotConn), trace.WithAttributes(
			attribute.Bool("connection.reused", nt.reused),
			attribute.Bool("connection.was_idle", nt.wasIdle),
			attribute.String("network.peer.address", nt.remoteAddr),
		))
	}
	if !nt.firstByte.IsZero() {
		span.AddEvent("got_first_response_byte", trace.WithTimestamp(nt.firstByte))
	}
}

// record emits the network timing histograms.
func (nt *networkTrace) record(ctx context.Context, m *metrics, attrs []attribute.KeyValue) {
	if nt.dns.complete() {
		m.recordDNSDuration(ctx, nt.dns.duration(), attrs)
	}
	if nt.connect.complete() {
		m.recordConnectionDuration(ctx, nt.connect.duration(), attrs)
	}
	if nt.tls.complete() {
		m.recordTLSDuration(ctx, nt.tls.duration(), attrs)
	}
	if !nt.wroteRequest.IsZero() && !nt.firstByte.IsZero() {
		m.recordTTFB(ctx, nt.firstByte.Sub(nt.wroteRequest), attrs)
	}
}

// classifyError returns an error.type classification for a transport error.
func classifyError(err error) string {
	if err == nil {
		return ""
	}

	var (
		netErr  net.Error
		dnsErr  *net.DNSError
		recErr  *tls.RecordHeaderError
		certErr *tls.CertificateVerificationError
	)

	switch {
	case errors.Is(err, context.Canceled):
		return ErrorTypeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	case errors.As(err, &dnsErr):
		return ErrorTypeDNSError
	case errors.As(err, &netErr) && netErr.Timeout():
		return ErrorTypeTimeout
	case errors.As(err, &recErr), errors.As(err, &certErr):
		return ErrorTypeTLSError
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrorTypeConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return ErrorTypeConnectionReset
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return ErrorTypeEOF
	}

	// net/http flattens some causes into strings.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorTypeTimeout
	case strings.Contains(msg, "connection refused"):
		return ErrorTypeConnectionRefused
	case strings.Contains(msg, "connection reset"):
		return ErrorTypeConnectionReset
	case strings.Contains(msg, "no such host"):
		return ErrorTypeDNSError
	case strings.Contains(msg, "tls"), strings.Contains(msg, "x509"):
		return ErrorTypeTLSError
	case strings.Contains(msg, "eof"):
		return ErrorTypeEOF
	}

	return ErrorTypeUnknown
}

// errorTypeFromStatusCode returns error.type for HTTP status codes: the code
// itself for 4xx and 5xx.
func errorTypeFromStatusCode(statusCode int) string {
	if statusCode >= 400 {
		return strconv.Itoa(statusCode)
	}
	return ""
}

// setSpanError records an error on the span with proper status and attributes.
func setSpanError(span trace.Span, err error, errorType string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String("error.type", errorType))
	}
}
