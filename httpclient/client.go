package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

// Client issues asynchronous HTTP calls. Every call streams its response
// body into a private aggregator, classifies the completed response by
// status code and, when configured, is gated by a circuit breaker.
//
// Create a Client using New():
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("payment-service"),
//	    httpclient.WithBreakerConfig(httpclient.DefaultBreakerConfig()),
//	)
//
//	f := httpclient.Get(ctx, client, "/payments/42", httpclient.NoContent(), httpclient.JSON[Payment]())
//	payment, err := f.Await(ctx)
//
// Generic calls are package functions because Go methods cannot take type
// parameters.
type Client struct {
	config    *internalConfig
	transport Transport
	http      *HTTPTransport
	gate      *gate
	limiter   *rateLimiter
	logger    zerolog.Logger
}

// New creates a Client with production-ready defaults and OpenTelemetry
// instrumentation.
//
// The client includes:
//   - Connection pooling, a 10s connection timeout and a 5s request timeout
//   - OpenTelemetry tracing and metrics
//   - An optional circuit breaker (WithBreakerConfig, WithCircuitBreaker)
//   - An optional client-side rate limit (WithRateLimit)
func New(opts ...Option) *Client {
	cfg := newConfig(opts...)

	c := &Client{
		config:  cfg,
		gate:    newGate(cfg),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  cfg.Logger,
	}

	if cfg.Transport != nil {
		c.transport = cfg.Transport
	} else {
		c.http = newHTTPTransport(cfg)
		c.transport = c.http
	}

	return c
}

// HTTP returns the underlying *http.Client for advanced use cases, or nil
// when a custom Transport was injected with WithTransport.
//
// Use this when you need to pass the instrumented client to third-party
// libraries expecting *http.Client.
func (c *Client) HTTP() *http.Client {
	if c.http == nil {
		return nil
	}
	return c.http.Client()
}

// RequestTimeout returns the bound applied to every call.
func (c *Client) RequestTimeout() time.Duration {
	return c.config.httpConfig.RequestTimeout
}

// ProxyURL returns the proxy set with WithProxyURL, or nil.
func (c *Client) ProxyURL() *url.URL {
	return c.config.ProxyURL
}

// RateLimiterStats returns the rate limiter state, and false when rate
// limiting is disabled.
func (c *Client) RateLimiterStats() (RateLimiterStats, bool) {
	if c.limiter == nil {
		return RateLimiterStats{}, false
	}
	return c.limiter.stats(), true
}

// BreakerState returns the circuit state, and false when the client has no
// breaker or an external breaker that does not report its state.
func (c *Client) BreakerState() (gobreaker.State, bool) {
	if c.gate == nil {
		return 0, false
	}
	return c.gate.currentState()
}

// Execute starts a call and returns immediately. The future completes with
// the handled body of a 2xx response or one typed error:
//
//   - *RequestError: invalid method, body or interceptor failure; nothing sent
//   - *CircuitOpenError: the breaker denied the call; nothing sent
//   - *TransportError: connect, timeout, socket or body streaming failure
//   - *ClientError, *ServerError, *ProtocolError: non-2xx status
//   - *DeserializationError: the 2xx body could not be handled
//
// ctx bounds the call together with the configured request timeout. A nil
// cp sends no body.
func Execute[T any](
	ctx context.Context,
	c *Client,
	method, path string,
	cp ContentProvider,
	handler ResponseHandler[T],
) *Future[T] {
	f := newFuture[T]()
	if cp == nil {
		cp = NoContent()
	}
	go c.run(ctx, f.setCancel, method, path, cp, func(resp *CompletedResponse) (any, error) {
		return handle(handler, resp)
	}, func(v any, err error) {
		value, _ := v.(T)
		f.complete(value, err)
	})
	return f
}

// Get issues a GET call. See Execute.
func Get[T any](ctx context.Context, c *Client, path string, cp ContentProvider, h ResponseHandler[T]) *Future[T] {
	return Execute(ctx, c, http.MethodGet, path, cp, h)
}

// Post issues a POST call. See Execute.
func Post[T any](ctx context.Context, c *Client, path string, cp ContentProvider, h ResponseHandler[T]) *Future[T] {
	return Execute(ctx, c, http.MethodPost, path, cp, h)
}

// Put issues a PUT call. See Execute.
func Put[T any](ctx context.Context, c *Client, path string, cp ContentProvider, h ResponseHandler[T]) *Future[T] {
	return Execute(ctx, c, http.MethodPut, path, cp, h)
}

// Patch issues a PATCH call. See Execute.
func Patch[T any](ctx context.Context, c *Client, path string, cp ContentProvider, h ResponseHandler[T]) *Future[T] {
	return Execute(ctx, c, http.MethodPatch, path, cp, h)
}

// Delete issues a DELETE call. See Execute.
func Delete[T any](ctx context.Context, c *Client, path string, cp ContentProvider, h ResponseHandler[T]) *Future[T] {
	return Execute(ctx, c, http.MethodDelete, path, cp, h)
}

// handle applies the response handler to a 2xx response. Handler failures
// that are not already typed become *DeserializationError.
func handle[T any](h ResponseHandler[T], resp *CompletedResponse) (any, error) {
	v, err := h.Handle(resp)
	if err == nil {
		return v, nil
	}
	var decodeErr *DeserializationError
	if errors.As(err, &decodeErr) {
		return v, err
	}
	return v, &DeserializationError{StatusCode: resp.StatusCode, Body: resp.Body, Err: err}
}

// run executes one call on its own goroutine and reports through done.
// setCancel registers the hook a Future uses to release the aggregator.
func (c *Client) run(
	parent context.Context,
	setCancel func(func()),
	method, path string,
	cp ContentProvider,
	handleBody func(*CompletedResponse) (any, error),
	done func(any, error),
) {
	ctx, cancel := c.requestContext(parent)
	defer cancel()

	// A cancelled future tears down whatever is in flight.
	setCancel(cancel)

	start := time.Now()
	attrs := c.config.baseAttributes()

	finish := func(v any, err error) {
		c.config.Metrics.recordOutcome(ctx, KindOf(err), attrs)
		done(v, err)
	}

	if err := c.limiter.acquire(ctx); err != nil {
		finish(nil, err)
		return
	}

	call := func() (any, error) {
		return c.call(ctx, setCancel, cancel, start, method, path, cp, handleBody)
	}

	if c.gate == nil {
		finish(call())
		return
	}
	finish(c.gate.execute(ctx, call))
}

// call builds the request, dispatches it and classifies the result.
func (c *Client) call(
	ctx context.Context,
	setCancel func(func()),
	cancel context.CancelFunc,
	start time.Time,
	method, path string,
	cp ContentProvider,
	handleBody func(*CompletedResponse) (any, error),
) (any, error) {
	spec, err := c.buildSpec(ctx, method, path, cp)
	if err != nil {
		return nil, err
	}

	if c.config.Debug {
		logRequest(c.logger, spec, c.config.GenerateCurl)
	}

	resp, err := c.dispatch(ctx, setCancel, cancel, spec)
	if err != nil {
		if c.config.Debug {
			logFailure(c.logger, spec, err, time.Since(start))
		}
		return nil, err
	}

	if c.config.Debug {
		logResponse(c.logger, spec, resp, time.Since(start))
	}

	if err := Classify(resp); err != nil {
		return nil, err
	}
	return handleBody(resp)
}

// dispatch sends spec and aggregates the streamed body. Every failure is a
// *TransportError.
func (c *Client) dispatch(
	ctx context.Context,
	setCancel func(func()),
	cancel context.CancelFunc,
	spec *RequestSpec,
) (*CompletedResponse, error) {
	head, err := c.transport.Dispatch(ctx, spec)
	if err != nil {
		return nil, transportError(ctx, err)
	}

	agg := NewAggregator(head, c.logger)
	setCancel(func() {
		agg.Cancel()
		cancel()
	})
	head.Body.Subscribe(agg)

	select {
	case <-agg.Done():
	case <-ctx.Done():
		agg.Cancel()
		return nil, &TransportError{Err: ctx.Err()}
	}

	resp, err := agg.Result()
	if err != nil {
		return nil, transportError(ctx, err)
	}
	return resp, nil
}

// transportError wraps err, preferring the context error when the context
// ended: net/http reports those as opaque strings otherwise.
func transportError(ctx context.Context, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		err = te.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &TransportError{Err: fmt.Errorf("%w: %w", ctxErr, err)}
	}
	return &TransportError{Err: err}
}

// requestContext bounds parent by the configured request timeout.
func (c *Client) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d := c.config.httpConfig.RequestTimeout; d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

// buildSpec assembles the immutable request. Headers are merged in order:
// client defaults, then provider headers (which already carry the client
// context on top), then interceptors.
func (c *Client) buildSpec(ctx context.Context, method, path string, cp ContentProvider) (*RequestSpec, error) {
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return nil, &RequestError{Err: fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)}
	}

	header := c.config.DefaultHeaders.Clone()
	for k, v := range cp.Headers() {
		header.Set(k, v)
	}

	query := make(url.Values)
	for k, v := range cp.Parameters() {
		query.Set(k, v)
	}

	spec := &RequestSpec{
		method:  method,
		url:     joinURL(c.config.BaseURL, path),
		header:  header,
		query:   query,
		timeout: c.config.httpConfig.RequestTimeout,
	}

	if producer := cp.Body(); producer != nil {
		body, err := producer.Produce()
		if err != nil {
			return nil, &RequestError{Err: fmt.Errorf("serialize body: %w", err)}
		}
		spec.body = body
		spec.contentType = producer.ContentType()
	}

	if err := applyInterceptors(ctx, spec.header, c.config.Interceptors); err != nil {
		return nil, &RequestError{Err: fmt.Errorf("interceptor: %w", err)}
	}

	return spec, nil
}

// joinURL resolves path against base with a plain join.
func joinURL(base, path string) string {
	if base == "" {
		return path
	}
	if path == "" {
		return base
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
