package httpclient

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis for distributed circuit breaking.
// This uses the official sony/gobreaker/v2/redis implementation.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	cfg := httpclient.DefaultBreakerConfig()
//	cfg.Store = httpclient.NewRedisStore(rdb)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is the breaker a Client gates calls through.
// It matches the gobreaker.CircuitBreaker signature.
//
// Execute must either refuse the call, returning an error without invoking
// req, or invoke req exactly once and return its result. A nil error from req
// is recorded as a success, anything else as a failure.
type CircuitBreaker interface {
	Execute(req func() (interface{}, error)) (interface{}, error)
}

// BreakerConfig holds the configuration for the circuit breaker.
//
// Concepts:
//   - Closed: calls allowed; outcomes are counted.
//   - Open: calls rejected with *CircuitOpenError without any network I/O.
//   - Half-Open: a limited number of trial calls probe for recovery. Any
//     failure reopens the circuit; all trials succeeding closes it.
type BreakerConfig struct {
	// Name identifies the breaker in logs, metrics and the shared store.
	// Defaults to the client's service name, or "default-http-client".
	Name string

	// FailureRateThreshold is the failure percentage (0-100) at or above
	// which the circuit opens.
	// Default: 50
	FailureRateThreshold float64

	// RingBufferSizeInClosedState is the number of calls that must be
	// recorded while closed before the failure rate is evaluated.
	// Default: 100
	RingBufferSizeInClosedState uint32

	// RingBufferSizeInHalfOpenState is the number of trial calls permitted
	// while half-open.
	// Default: 10
	RingBufferSizeInHalfOpenState uint32

	// WaitDurationInOpenState is how long the circuit stays open before
	// moving to half-open.
	// Default: 60s
	WaitDurationInOpenState time.Duration

	// Interval is the cyclic period after which counts collected while
	// closed are cleared. Zero keeps counting until a state change.
	// Default: 0
	Interval time.Duration

	// IgnoredOutcomeKinds are outcome kinds recorded as non-failures. The
	// call still fails for the caller.
	// Default: {KindClientError}
	IgnoredOutcomeKinds []OutcomeKind

	// Store is the shared data store for distributed circuit breaking.
	// If nil, the circuit breaker is local (in-memory).
	Store gobreaker.SharedDataStore

	// OnStateChange is a callback invoked when the circuit breaker state changes.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the default breaker configuration:
// 50% failure rate over 100 calls, 10 half-open trials, 60s open, ignoring
// client errors.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureRateThreshold:          50,
		RingBufferSizeInClosedState:   100,
		RingBufferSizeInHalfOpenState: 10,
		WaitDurationInOpenState:       60 * time.Second,
		IgnoredOutcomeKinds:           []OutcomeKind{KindClientError},
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig sharing its state
// through store, so that every instance sees the same circuit.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// withDefaults fills zero fields.
func (c BreakerConfig) withDefaults(serviceName string) BreakerConfig {
	d := DefaultBreakerConfig()
	if c.Name == "" {
		c.Name = serviceName
	}
	if c.Name == "" {
		c.Name = "default-http-client"
	}
	if c.FailureRateThreshold <= 0 {
		c.FailureRateThreshold = d.FailureRateThreshold
	}
	if c.RingBufferSizeInClosedState == 0 {
		c.RingBufferSizeInClosedState = d.RingBufferSizeInClosedState
	}
	if c.RingBufferSizeInHalfOpenState == 0 {
		c.RingBufferSizeInHalfOpenState = d.RingBufferSizeInHalfOpenState
	}
	if c.WaitDurationInOpenState <= 0 {
		c.WaitDurationInOpenState = d.WaitDurationInOpenState
	}
	if c.IgnoredOutcomeKinds == nil {
		c.IgnoredOutcomeKinds = d.IgnoredOutcomeKinds
	}
	return c
}

// settings maps the configuration onto gobreaker.
func (c BreakerConfig) settings(onChange func(name string, from, to gobreaker.State)) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        c.Name,
		MaxRequests: c.RingBufferSizeInHalfOpenState,
		Interval:    c.Interval,
		Timeout:     c.WaitDurationInOpenState,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.RingBufferSizeInClosedState {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			return rate >= c.FailureRateThreshold
		},
		OnStateChange: onChange,
	}
}

// gate decorates a call with a circuit breaker: one permission check before
// dispatch, one outcome report after completion.
type gate struct {
	breaker CircuitBreaker
	name    string
	ignored map[OutcomeKind]bool
	metrics *metrics
	logger  zerolog.Logger

	// state mirrors the state of a breaker built by the gate.
	built bool
	state atomic.Int32
}

// newGate builds the gate for cfg, or returns nil when no breaker is
// configured.
func newGate(cfg *internalConfig) *gate {
	if cfg.CircuitBreaker == nil && cfg.BreakerConfig == nil {
		return nil
	}

	bc := DefaultBreakerConfig()
	if cfg.BreakerConfig != nil {
		bc = *cfg.BreakerConfig
	}
	bc = bc.withDefaults(cfg.ServiceName)

	g := &gate{
		breaker: cfg.CircuitBreaker,
		name:    bc.Name,
		ignored: make(map[OutcomeKind]bool, len(bc.IgnoredOutcomeKinds)),
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("breaker", bc.Name).Logger(),
	}
	for _, k := range bc.IgnoredOutcomeKinds {
		g.ignored[k] = true
	}

	if g.breaker == nil {
		g.breaker = g.build(bc)
		g.built = true
	}
	return g
}

func (g *gate) build(bc BreakerConfig) CircuitBreaker {
	st := bc.settings(func(name string, from, to gobreaker.State) {
		g.state.Store(int32(to))
		g.metrics.recordBreakerState(context.Background(), name, int64(to))

		ev := g.logger.Info()
		if to == gobreaker.StateOpen {
			ev = g.logger.Warn()
		}
		ev.Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")

		if bc.OnStateChange != nil {
			bc.OnStateChange(name, from, to)
		}
	})

	if bc.Store == nil {
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}

	dcb, err := gobreaker.NewDistributedCircuitBreaker[interface{}](bc.Store, st)
	if err != nil {
		// A local breaker still protects this instance.
		g.logger.Warn().Err(err).Msg("distributed circuit breaker unavailable, using local breaker")
		return gobreaker.NewCircuitBreaker[interface{}](st)
	}
	return dcb
}

// execute runs call through the breaker.
//
// A refusal yields *CircuitOpenError and call is never invoked. Errors whose
// kind is in the ignore set, request construction errors and caller
// cancellation are reported to the breaker as non-failures but still
// returned to the caller.
//
// Once call ran, its own result is returned. A breaker error raised after
// the call, such as a shared store write failure, is logged and dropped.
func (g *gate) execute(ctx context.Context, call func() (interface{}, error)) (interface{}, error) {
	var (
		invoked bool
		ignored bool
		value   interface{}
		callErr error
	)

	_, err := g.breaker.Execute(func() (interface{}, error) {
		invoked = true
		value, callErr = call()
		if callErr != nil && g.isIgnored(callErr) {
			ignored = true
			return value, nil
		}
		return value, callErr
	})

	if !invoked {
		g.metrics.recordBreakerRequest(ctx, g.name, breakerResultRejected)
		g.logger.Debug().Err(err).Msg("call rejected by circuit breaker")
		if err == nil {
			err = gobreaker.ErrOpenState
		}
		return nil, &CircuitOpenError{Name: g.name, Err: err}
	}

	if err != nil && (ignored || callErr == nil || !errors.Is(err, callErr)) {
		g.logger.Warn().Err(err).Msg("circuit breaker failed to record outcome")
	}

	switch {
	case callErr == nil:
		g.metrics.recordBreakerRequest(ctx, g.name, breakerResultSuccess)
	case ignored:
		g.metrics.recordBreakerRequest(ctx, g.name, breakerResultIgnored)
		g.logger.Debug().Str("kind", KindOf(callErr).String()).Msg("breaker ignored failure")
	default:
		g.metrics.recordBreakerRequest(ctx, g.name, breakerResultFailure)
		g.logger.Debug().Str("kind", KindOf(callErr).String()).Msg("breaker recorded failure")
	}
	return value, callErr
}

// currentState reports the breaker state. External breakers are asked
// directly when they expose a State method.
func (g *gate) currentState() (gobreaker.State, bool) {
	if g.built {
		return gobreaker.State(g.state.Load()), true
	}
	if s, ok := g.breaker.(interface{ State() gobreaker.State }); ok {
		return s.State(), true
	}
	return 0, false
}

func (g *gate) isIgnored(err error) bool {
	kind := KindOf(err)
	if kind == KindRequestError {
		return true
	}
	var te *TransportError
	if errors.As(err, &te) && te.Canceled() {
		return true
	}
	return g.ignored[kind]
}
