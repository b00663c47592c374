package httpclient

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestInterceptor adjusts the headers of a request while it is built.
// Interceptors run in the order they were added, after default, provider
// and client context headers were merged, so they have the last word.
//
// An error aborts the call with a *RequestError before anything is sent.
//
// Common use cases:
//   - Adding authentication headers (Bearer tokens, API keys)
//   - Injecting correlation IDs
//   - Adding custom headers based on request context
type RequestInterceptor func(ctx context.Context, header http.Header) error

// applyInterceptors runs interceptors in order and stops at the first error.
func applyInterceptors(ctx context.Context, header http.Header, interceptors []RequestInterceptor) error {
	for _, intercept := range interceptors {
		if err := intercept(ctx, header); err != nil {
			return err
		}
	}
	return nil
}

// AuthBearerInterceptor creates an interceptor that adds a Bearer token.
func AuthBearerInterceptor(token string) RequestInterceptor {
	return func(_ context.Context, h http.Header) error {
		h.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// AuthBearerFuncInterceptor creates an interceptor that adds a Bearer token
// from a function (useful for dynamic/refreshable tokens).
func AuthBearerFuncInterceptor(tokenFunc func(ctx context.Context) (string, error)) RequestInterceptor {
	return func(ctx context.Context, h http.Header) error {
		token, err := tokenFunc(ctx)
		if err != nil {
			return err
		}
		h.Set("Authorization", "Bearer "+token)
		return nil
	}
}

// APIKeyInterceptor creates an interceptor that adds an API key header.
func APIKeyInterceptor(headerName, apiKey string) RequestInterceptor {
	return func(_ context.Context, h http.Header) error {
		h.Set(headerName, apiKey)
		return nil
	}
}

// DefaultCorrelationIDHeader is the header CorrelationIDInterceptor writes
// when given an empty header name.
const DefaultCorrelationIDHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// ContextWithCorrelationID returns a context whose requests carry id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the id stored by ContextWithCorrelationID.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey{}).(string)
	return id, ok && id != ""
}

// CorrelationIDInterceptor sets a correlation ID header. The ID comes from the
// context when present, otherwise a random UUID is generated. A header that
// is already set, for example through a ClientContext, is left alone.
func CorrelationIDInterceptor(headerName string) RequestInterceptor {
	if headerName == "" {
		headerName = DefaultCorrelationIDHeader
	}
	return func(ctx context.Context, h http.Header) error {
		if h.Get(headerName) != "" {
			return nil
		}
		id, ok := CorrelationIDFromContext(ctx)
		if !ok {
			id = uuid.NewString()
		}
		h.Set(headerName, id)
		return nil
	}
}

// UserAgentInterceptor creates an interceptor that sets the User-Agent header.
func UserAgentInterceptor(userAgent string) RequestInterceptor {
	return func(_ context.Context, h http.Header) error {
		h.Set("User-Agent", userAgent)
		return nil
	}
}
