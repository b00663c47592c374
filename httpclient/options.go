package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/sentinel-reactive/httpclient"
)

// =============================================================================
// Config - Timeouts and Connection Pool
// =============================================================================

// Config holds the timeout and connection pool parameters of a Client.
// Use DefaultConfig() to get a properly initialized configuration,
// then modify specific fields as needed.
//
// Example:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.RequestTimeout = 2 * time.Second
//
//	client := httpclient.New(
//	    httpclient.WithConfig(cfg),
//	    httpclient.WithBaseURL("https://api.example.com"),
//	)
type Config struct {
	// =======================================================================
	// Timeouts
	// =======================================================================

	// ConnectionTimeout bounds establishing a connection: the TCP dial and
	// the TLS handshake.
	//
	// Default: 10s
	ConnectionTimeout time.Duration

	// RequestTimeout bounds the whole exchange, from dispatch until the
	// last body chunk was received. When it expires the call completes
	// with a *TransportError.
	//
	// A zero RequestTimeout means the caller's context is the only bound.
	//
	// Default: 5s
	RequestTimeout time.Duration

	// ResponseHeaderTimeout is the time to wait for response headers
	// after the request is fully written. Zero means RequestTimeout alone
	// applies.
	//
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// =======================================================================
	// Connection Pool
	// =======================================================================

	// MaxIdleConns controls the maximum number of idle (keep-alive)
	// connections across all hosts.
	//
	// Default: 100
	MaxIdleConns int

	// MaxIdleConnsPerHost controls the maximum idle connections kept for
	// each host. If you primarily call one service, set this close to
	// MaxIdleConns.
	//
	// Default: 20
	MaxIdleConnsPerHost int

	// MaxConnsPerHost limits the total number of connections (idle and
	// active) per host. Zero means unlimited.
	//
	// Default: 100
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	//
	// Default: 90s
	IdleConnTimeout time.Duration

	// KeepAlive specifies the TCP keep-alive probe interval.
	//
	// Default: 30s
	KeepAlive time.Duration

	// =======================================================================
	// Streaming
	// =======================================================================

	// ChunkSize is the size of the buffer each body chunk is read into.
	// At most one chunk per request is in flight at any time.
	//
	// Default: 16KB
	ChunkSize int

	// =======================================================================
	// Protocol
	// =======================================================================

	// DisableKeepAlives forces a new connection for each request.
	//
	// Default: false
	DisableKeepAlives bool

	// DisableCompression disables the "Accept-Encoding: gzip" header.
	//
	// Default: true
	DisableCompression bool

	// ForceHTTP2 makes the transport attempt HTTP/2 even with a custom
	// dialer or TLS configuration.
	//
	// Default: false
	ForceHTTP2 bool
}

// DefaultConfig returns a balanced configuration suitable for most use cases.
//
// The timeouts are 10s to connect and 5s for the whole request.
func DefaultConfig() Config {
	return Config{
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    5 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		KeepAlive:           30 * time.Second,

		ChunkSize: defaultChunkSize,

		DisableKeepAlives:  false,
		DisableCompression: true,
		ForceHTTP2:         false,
	}
}

// LowLatencyConfig returns a configuration that fails fast.
//
// Best for user-facing services and health checks.
func LowLatencyConfig() Config {
	return Config{
		ConnectionTimeout:     2 * time.Second,
		RequestTimeout:        1 * time.Second,
		ResponseHeaderTimeout: 800 * time.Millisecond,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 25,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     60 * time.Second,
		KeepAlive:           15 * time.Second,

		ChunkSize: 8 * 1024,

		DisableCompression: true,
		ForceHTTP2:         true,
	}
}

// HighThroughputConfig returns a configuration for many concurrent requests
// against the same downstream services.
//
// Key differences from DefaultConfig:
//   - Higher connection pool limits
//   - Unlimited MaxConnsPerHost for burst handling
//   - Larger chunks
func HighThroughputConfig() Config {
	return Config{
		ConnectionTimeout: 10 * time.Second,
		RequestTimeout:    30 * time.Second,

		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     120 * time.Second,
		KeepAlive:           30 * time.Second,

		ChunkSize: 64 * 1024,

		DisableCompression: true,
	}
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds all configuration including transport, resilience and
// OTel settings.
type internalConfig struct {
	httpConfig Config

	// BaseURL is prepended to every request path.
	BaseURL string

	// DefaultHeaders are applied to every request before the content
	// provider headers.
	DefaultHeaders http.Header

	// === Logging ===

	Logger       zerolog.Logger
	loggerSet    bool
	Debug        bool
	GenerateCurl bool

	// === Transport ===

	// RoundTripper replaces the tuned *http.Transport at the bottom of
	// the chain. Instrumentation still wraps it.
	RoundTripper http.RoundTripper

	// Transport replaces the whole net/http backed dispatch.
	Transport Transport

	TLSConfig            *tls.Config
	ProxyURL             *url.URL
	ProxyFromEnvironment bool

	// === Resilience ===

	BreakerConfig  *BreakerConfig
	CircuitBreaker CircuitBreaker
	RateLimit      *RateLimitConfig

	Interceptors []RequestInterceptor

	// === OpenTelemetry ===

	TracerProvider     trace.TracerProvider
	MeterProvider      metric.MeterProvider
	Tracer             trace.Tracer
	Meter              metric.Meter
	Metrics            *metrics
	Propagators        propagation.TextMapPropagator
	SpanNameFormatter  SpanNameFormatter
	EnableNetworkTrace bool

	// ServiceName is added as "http.client.name" on spans and metrics.
	ServiceName string
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:     DefaultConfig(),
		DefaultHeaders: make(http.Header),
		Logger:         zerolog.Nop(),
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),

		EnableNetworkTrace:   true,
		ProxyFromEnvironment: true,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Debug && !cfg.loggerSet {
		cfg.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
	if cfg.Propagators == nil {
		cfg.Propagators = propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		)
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// A failed registration leaves metrics nil; every recorder is nil-safe.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates an http.Transport from the configuration.
// ConnectionTimeout bounds both the dial and the TLS handshake.
func (cfg *internalConfig) buildTransport() *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:   hc.ConnectionTimeout,
		KeepAlive: hc.KeepAlive,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          hc.MaxIdleConns,
		MaxIdleConnsPerHost:   hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:       hc.MaxConnsPerHost,
		IdleConnTimeout:       hc.IdleConnTimeout,
		TLSHandshakeTimeout:   hc.ConnectionTimeout,
		ResponseHeaderTimeout: hc.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		DisableKeepAlives:     hc.DisableKeepAlives,
		DisableCompression:    hc.DisableCompression,
		TLSClientConfig:       cfg.TLSConfig,
		ForceAttemptHTTP2:     hc.ForceHTTP2,
	}

	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 1)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	return attrs
}

// =============================================================================
// Options
// =============================================================================

// SpanNameFormatter formats span names based on the HTTP request.
//
// Default behavior produces: "HTTP {method}" (e.g., "HTTP GET")
type SpanNameFormatter func(method string, r *http.Request) string

// Option configures the HTTP client.
type Option func(*internalConfig)

// WithConfig sets the timeout and pool configuration.
// Use DefaultConfig(), LowLatencyConfig() or HighThroughputConfig() as a
// starting point.
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithRequestTimeout overrides Config.RequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.RequestTimeout = d
	}
}

// WithConnectionTimeout overrides Config.ConnectionTimeout.
func WithConnectionTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.ConnectionTimeout = d
	}
}

// WithChunkSize overrides Config.ChunkSize.
func WithChunkSize(n int) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.ChunkSize = n
	}
}

// WithBaseURL sets the URL every request path is resolved against.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com/v1"),
//	)
//	// Get[User](ctx, client, "/users/1", nil) calls
//	// https://api.example.com/v1/users/1
func WithBaseURL(baseURL string) Option {
	return func(cfg *internalConfig) {
		cfg.BaseURL = baseURL
	}
}

// WithDefaultHeaders adds headers sent with every request. Content provider
// and client context headers override them.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(cfg *internalConfig) {
		for k, v := range headers {
			cfg.DefaultHeaders.Set(k, v)
		}
	}
}

// WithServiceName sets an identifier for this HTTP client in traces and
// metrics. It is also the default circuit breaker name.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = logger
		cfg.loggerSet = true
	}
}

// WithDebug enables request and response debug logs. Without WithLogger,
// logs are written to stdout.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithGenerateCurl logs an equivalent cURL command for every request.
// It implies WithDebug(true).
func WithGenerateCurl(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.GenerateCurl = enabled
		if enabled {
			cfg.Debug = true
		}
	}
}

// WithRoundTripper sets the base http.RoundTripper. OpenTelemetry
// instrumentation still wraps it; pool configuration is not applied.
//
// Example:
//
//	mock := httpclient.NewMockTransport()
//	client := httpclient.New(httpclient.WithRoundTripper(mock))
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(cfg *internalConfig) {
		cfg.RoundTripper = rt
	}
}

// WithTransport replaces the net/http backed transport entirely.
func WithTransport(t Transport) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = t
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider from otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider from otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets custom context propagators for trace context injection.
// By default, W3C TraceContext and Baggage propagators are used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}

// WithSpanNameFormatter sets a custom function to generate span names.
func WithSpanNameFormatter(f SpanNameFormatter) Option {
	return func(cfg *internalConfig) {
		cfg.SpanNameFormatter = f
	}
}

// WithDisableNetworkTrace disables DNS, connect, TLS and TTFB span events
// and metrics.
func WithDisableNetworkTrace() Option {
	return func(cfg *internalConfig) {
		cfg.EnableNetworkTrace = false
	}
}

// WithTLSConfig sets a custom TLS configuration.
//
// Example - Mutual TLS with client certificate:
//
//	cert, _ := tls.LoadX509KeyPair("client.crt", "client.key")
//	client := httpclient.New(
//	    httpclient.WithTLSConfig(&tls.Config{
//	        Certificates: []tls.Certificate{cert},
//	    }),
//	)
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithProxyURL routes every request through the given proxy.
// It takes precedence over environment variables.
func WithProxyURL(proxyURL *url.URL) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyURL = proxyURL
		cfg.ProxyFromEnvironment = false
	}
}

// WithProxyFromEnvironment enables or disables HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY handling.
//
// Default: true
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithBreakerConfig enables the circuit breaker gate.
//
// Example:
//
//	cfg := httpclient.DefaultBreakerConfig()
//	cfg.RingBufferSizeInClosedState = 20
//	client := httpclient.New(httpclient.WithBreakerConfig(cfg))
func WithBreakerConfig(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &c
	}
}

// WithCircuitBreaker gates calls through an externally built breaker. It
// takes precedence over WithBreakerConfig.
func WithCircuitBreaker(cb CircuitBreaker) Option {
	return func(cfg *internalConfig) {
		cfg.CircuitBreaker = cb
	}
}

// WithRateLimit enables client-side rate limiting, applied before the
// circuit breaker.
func WithRateLimit(c RateLimitConfig) Option {
	return func(cfg *internalConfig) {
		cfg.RateLimit = &c
	}
}

// WithInterceptor adds request interceptors. They run in order after all
// other headers have been merged.
func WithInterceptor(interceptors ...RequestInterceptor) Option {
	return func(cfg *internalConfig) {
		cfg.Interceptors = append(cfg.Interceptors, interceptors...)
	}
}
