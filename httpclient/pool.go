package httpclient

import (
	"net/http"
	"time"
)

// PoolStats is a snapshot of the connection pool settings of the
// *http.Transport a Client dispatches through.
type PoolStats struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int // 0 is unlimited

	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration

	DisableKeepAlives bool
	HTTP2             bool
}

// PoolStats reports false when dispatch does not end in an *http.Transport,
// as with WithTransport, WithMockTransport or a foreign round tripper.
func (c *Client) PoolStats() (PoolStats, bool) {
	hc := c.HTTP()
	if hc == nil {
		return PoolStats{}, false
	}

	tr := baseTransport(hc.Transport)
	if tr == nil {
		return PoolStats{}, false
	}

	return PoolStats{
		MaxIdleConns:          tr.MaxIdleConns,
		MaxIdleConnsPerHost:   tr.MaxIdleConnsPerHost,
		MaxConnsPerHost:       tr.MaxConnsPerHost,
		IdleConnTimeout:       tr.IdleConnTimeout,
		TLSHandshakeTimeout:   tr.TLSHandshakeTimeout,
		ResponseHeaderTimeout: tr.ResponseHeaderTimeout,
		DisableKeepAlives:     tr.DisableKeepAlives,
		HTTP2:                 tr.ForceAttemptHTTP2,
	}, true
}

// baseTransport peels instrumentation wrappers off rt.
func baseTransport(rt http.RoundTripper) *http.Transport {
	for rt != nil {
		switch t := rt.(type) {
		case *http.Transport:
			return t
		case interface{ Unwrap() http.RoundTripper }:
			rt = t.Unwrap()
		default:
			return nil
		}
	}
	return nil
}
