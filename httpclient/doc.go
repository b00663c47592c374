// Package httpclient provides an asynchronous HTTP client that streams
// response bodies with backpressure, classifies outcomes into typed errors
// and protects callers from failing downstream services with a circuit
// breaker.
//
// # Features
//
//   - Non-blocking calls returning a Future that completes exactly once
//   - Demand-driven body streaming: one chunk in flight per request
//   - Typed outcomes: ClientError, ServerError, ProtocolError,
//     TransportError, DeserializationError, CircuitOpenError
//   - Circuit breaking via sony/gobreaker, locally or shared through Redis
//   - OpenTelemetry tracing and metrics, network timing events
//   - Connection pooling with a 10s connection and 5s request timeout
//
// # Quick Start
//
//	client := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com"),
//	    httpclient.WithServiceName("my-service"),
//	)
//
//	type User struct {
//	    Name string `json:"name"`
//	}
//
//	f := httpclient.Get(ctx, client, "/users/1", httpclient.NoContent(), httpclient.JSON[User]())
//	user, err := f.Await(ctx)
//
// POST with a JSON body and an extra header:
//
//	cp := httpclient.JSONContent(newUser, httpclient.WithHeader("X-Tenant", "acme"))
//	created, err := httpclient.Post(ctx, client, "/users", cp, httpclient.JSON[User]()).Await(ctx)
//
// # Handling Outcomes
//
// Every failure is one of the typed errors. Match with errors.As, or switch
// on KindOf:
//
//	_, err := f.Await(ctx)
//	var clientErr *httpclient.ClientError
//	switch {
//	case errors.As(err, &clientErr):
//	    log.Printf("rejected: %d %s", clientErr.StatusCode, clientErr.Body)
//	case errors.Is(err, httpclient.ErrCircuitOpen):
//	    // fail fast, nothing was sent
//	case httpclient.IsRetryable(err):
//	    // transport or server error, the caller may retry
//	}
//
// The package never retries on its own.
//
// # Circuit Breaker
//
//	cfg := httpclient.DefaultBreakerConfig()
//	cfg.FailureRateThreshold = 50
//	cfg.RingBufferSizeInClosedState = 20
//	cfg.WaitDurationInOpenState = 30 * time.Second
//
//	client := httpclient.New(httpclient.WithBreakerConfig(cfg))
//
// Client errors (4xx) are ignored by default: they fail the call but never
// trip the circuit. Set IgnoredOutcomeKinds to change that. To share the
// circuit across instances, set Store to NewRedisStore(redisClient).
//
// # Configuration Presets
//
//	client := httpclient.New(httpclient.WithConfig(httpclient.LowLatencyConfig()))
//	client := httpclient.New(httpclient.WithConfig(httpclient.HighThroughputConfig()))
//
// Settings can also be read with viper, see LoadProperties.
//
// # Observability
//
// The client emits:
//
// Metrics:
//   - http.client.request.duration (histogram)
//   - http.client.request.error (counter)
//   - http.client.outcomes (counter, by outcome.kind)
//   - http.client.breaker.requests (counter, by breaker.result)
//   - http.client.breaker.state (gauge)
//   - http.client.dns.duration, http.client.tls.duration (histograms)
//
// Traces:
//   - One client span per dispatch, ended when the body has been streamed
//   - Network timing events (DNS, TLS, connect)
//
// # Debug Utilities
//
//	client := httpclient.New(
//	    httpclient.WithDebug(true),        // Logs requests/responses with zerolog
//	    httpclient.WithGenerateCurl(true), // Adds the equivalent cURL command
//	)
package httpclient
