package httpclient

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// generateCurlCommand creates a cURL command equivalent for the given request.
//
// Sensitive headers like Authorization are included for debugging purposes.
//
// Example output:
//
//	curl -X POST 'https://api.example.com/users' -H 'Content-Type: application/json' -d '{"name":"John"}'
func generateCurlCommand(spec *RequestSpec) string {
	parts := []string{"curl"}

	if spec.method != "GET" {
		parts = append(parts, "-X", spec.method)
	}
	parts = append(parts, shellQuote(spec.URL()))

	header := spec.header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	if spec.contentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", spec.contentType)
	}

	keys := make([]string, 0, len(header))
	for k := range header {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, k := range keys {
		for _, v := range header[k] {
			parts = append(parts, "-H", shellQuote(k+": "+v))
		}
	}

	if len(spec.body) > 0 {
		parts = append(parts, "-d", shellQuote(string(spec.body)))
	}

	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// logRequest logs the request details.
func logRequest(logger zerolog.Logger, spec *RequestSpec, curl bool) {
	ev := logger.Debug().
		Str("method", spec.method).
		Str("url", spec.URL()).
		Int("body_size", len(spec.body))
	if curl {
		ev = ev.Str("curl", generateCurlCommand(spec))
	}
	ev.Msg("HTTP request")
}

// logResponse logs the aggregated response.
func logResponse(logger zerolog.Logger, spec *RequestSpec, resp *CompletedResponse, duration time.Duration) {
	logger.Debug().
		Str("method", spec.method).
		Str("url", spec.URL()).
		Int("status", resp.StatusCode).
		Str("reason", resp.Reason).
		Int("body_size", len(resp.Body)).
		Dur("duration_ms", duration).
		Msg("HTTP response")
}

// logFailure logs a call that ended without a response.
func logFailure(logger zerolog.Logger, spec *RequestSpec, err error, duration time.Duration) {
	logger.Debug().
		Str("method", spec.method).
		Str("url", spec.URL()).
		Str("kind", KindOf(err).String()).
		Err(err).
		Dur("duration_ms", duration).
		Msg("HTTP request failed")
}
