package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// OutcomeKind classifies the terminal result of a call.
//
// Every call ends in exactly one kind. Callers switch on the kind (or use
// errors.As on the concrete error types) to decide how to handle a failure:
//
//	switch httpclient.KindOf(err) {
//	case httpclient.KindClientError:
//	    // the request is wrong, do not retry
//	case httpclient.KindTransportError, httpclient.KindServerError:
//	    // possibly transient, the caller may retry
//	}
type OutcomeKind int

const (
	// KindSuccess means a 2xx response whose body decoded successfully.
	KindSuccess OutcomeKind = iota
	// KindClientError means a 4xx response.
	KindClientError
	// KindServerError means a 5xx response.
	KindServerError
	// KindProtocolError means any status outside 2xx, 4xx and 5xx.
	KindProtocolError
	// KindTransportError means connect, timeout, socket or stream failures.
	KindTransportError
	// KindDeserializationError means a 2xx response whose body failed to decode.
	KindDeserializationError
	// KindCircuitOpen means the circuit breaker denied the call.
	KindCircuitOpen
	// KindRequestError means the request could not be built (bad method,
	// body serialization failure). Nothing was sent.
	KindRequestError
)

var outcomeKindNames = map[OutcomeKind]string{
	KindSuccess:              "success",
	KindClientError:          "client_error",
	KindServerError:          "server_error",
	KindProtocolError:        "protocol_error",
	KindTransportError:       "transport_error",
	KindDeserializationError: "deserialization_error",
	KindCircuitOpen:          "circuit_open",
	KindRequestError:         "request_error",
}

// String returns the snake_case name of the kind.
func (k OutcomeKind) String() string {
	if name, ok := outcomeKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseOutcomeKind converts a kind name (as produced by String) back into an
// OutcomeKind. Matching is case-insensitive.
func ParseOutcomeKind(name string) (OutcomeKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for k, n := range outcomeKindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("httpclient: unknown outcome kind %q", name)
}

// ErrCircuitOpen matches any *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrUnsupportedMethod is wrapped in a *RequestError when Execute is called
// with a method other than GET, POST, PUT, PATCH or DELETE.
var ErrUnsupportedMethod = errors.New("unsupported http method")

// ClientError is returned for 4xx responses. Body carries the raw bytes.
type ClientError struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *ClientError) Error() string {
	return statusMessage("client error", e.StatusCode, e.Reason)
}

// ServerError is returned for 5xx responses. Body carries the raw bytes.
type ServerError struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *ServerError) Error() string {
	return statusMessage("server error", e.StatusCode, e.Reason)
}

// ProtocolError is returned for any status code that is neither 2xx, 4xx
// nor 5xx (1xx, 3xx, or out of range codes).
type ProtocolError struct {
	StatusCode int
	Reason     string
	Body       []byte
}

func (e *ProtocolError) Error() string {
	return statusMessage("unexpected status", e.StatusCode, e.Reason)
}

func statusMessage(what string, status int, reason string) string {
	if reason != "" {
		return fmt.Sprintf("httpclient: %s (HTTP %d %s)", what, status, reason)
	}
	return fmt.Sprintf("httpclient: %s (HTTP %d)", what, status)
}

// TransportError wraps connect, timeout and socket failures, including
// failures while streaming the response body. No response was produced.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "httpclient: transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline, either the
// request timeout, the connection timeout or the caller's own context.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// Canceled reports whether the call was abandoned by the caller.
func (e *TransportError) Canceled() bool {
	return errors.Is(e.Err, context.Canceled)
}

// DeserializationError is returned when a 2xx body cannot be decoded into
// the requested type. StatusCode is always 2xx.
type DeserializationError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("httpclient: cannot decode HTTP %d body: %v", e.StatusCode, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// CircuitOpenError is returned when the circuit breaker denies a call.
// No network I/O happened. Err is the breaker's own rejection error
// (for gobreaker, ErrOpenState or ErrTooManyRequests).
type CircuitOpenError struct {
	Name string
	Err  error
}

func (e *CircuitOpenError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("httpclient: circuit %q is open", e.Name)
	}
	return fmt.Sprintf("httpclient: circuit %q is open: %v", e.Name, e.Err)
}

func (e *CircuitOpenError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrCircuitOpen) true for every CircuitOpenError.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RequestError is returned when the request cannot be constructed,
// for example when the body codec fails to serialize the content.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "httpclient: cannot build request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// KindOf returns the outcome kind of err. A nil error is KindSuccess.
// Errors that did not originate from this package are reported as
// KindTransportError.
func KindOf(err error) OutcomeKind {
	if err == nil {
		return KindSuccess
	}

	var (
		clientErr   *ClientError
		serverErr   *ServerError
		protocolErr *ProtocolError
		decodeErr   *DeserializationError
		openErr     *CircuitOpenError
		requestErr  *RequestError
	)

	switch {
	case errors.As(err, &clientErr):
		return KindClientError
	case errors.As(err, &serverErr):
		return KindServerError
	case errors.As(err, &protocolErr):
		return KindProtocolError
	case errors.As(err, &decodeErr):
		return KindDeserializationError
	case errors.As(err, &openErr):
		return KindCircuitOpen
	case errors.As(err, &requestErr):
		return KindRequestError
	default:
		return KindTransportError
	}
}

// IsRetryable reports whether a caller could reasonably retry after err.
// Transport and server errors qualify, unless the caller canceled the call.
// This package never retries on its own.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindServerError:
		return true
	case KindTransportError:
		return !errors.Is(err, context.Canceled)
	default:
		return false
	}
}

// Outcome is the tagged result of a call: the decoded value on success,
// otherwise the typed error in Err with its Kind.
type Outcome[T any] struct {
	Kind  OutcomeKind
	Value T
	Err   error
}

// OK reports whether the outcome is a success.
func (o Outcome[T]) OK() bool {
	return o.Kind == KindSuccess
}

func newOutcome[T any](v T, err error) Outcome[T] {
	return Outcome[T]{Kind: KindOf(err), Value: v, Err: err}
}
