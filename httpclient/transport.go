package httpclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// defaultChunkSize is the read size used when streaming a response body.
const defaultChunkSize = 16 * 1024

// Compile-time interface checks.
var (
	_ Transport    = (*HTTPTransport)(nil)
	_ Publisher    = (*bodyPublisher)(nil)
	_ Subscription = (*bodySubscription)(nil)
)

// HTTPTransport is the default Transport, backed by net/http.
//
// The base round tripper is the tuned *http.Transport built from Config
// (or the one supplied with WithRoundTripper), wrapped with OpenTelemetry
// instrumentation. Response bodies are published chunk by chunk with
// demand-driven flow control.
type HTTPTransport struct {
	client    *http.Client
	chunkSize int
}

// newHTTPTransport assembles the round tripper chain for cfg.
func newHTTPTransport(cfg *internalConfig) *HTTPTransport {
	var base http.RoundTripper
	if cfg.RoundTripper != nil {
		base = cfg.RoundTripper
	} else {
		base = cfg.buildTransport()
	}

	chunkSize := cfg.httpConfig.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	return &HTTPTransport{
		client: &http.Client{
			Transport: newOtelTransport(base, cfg),
			// The request lifetime is bounded by the context deadline set
			// per call, which also covers body streaming.
			Timeout: 0,
		},
		chunkSize: chunkSize,
	}
}

// Client returns the underlying *http.Client.
func (t *HTTPTransport) Client() *http.Client {
	return t.client
}

// Dispatch sends spec and returns once response headers have arrived.
func (t *HTTPTransport) Dispatch(ctx context.Context, spec *RequestSpec) (*StreamResponse, error) {
	var body io.Reader
	if spec.body != nil {
		body = bytes.NewReader(spec.body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, spec.URL(), body)
	if err != nil {
		return nil, err
	}
	if spec.header != nil {
		req.Header = spec.header.Clone()
	}
	if spec.contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", spec.contentType)
	}

	resp, err := t.client.Do(req) //nolint:bodyclose // closed by the body publisher
	if err != nil {
		return nil, err
	}

	return &StreamResponse{
		StatusCode: resp.StatusCode,
		Reason:     reasonPhrase(resp),
		Header:     resp.Header,
		Trailer:    resp.Trailer,
		Body:       newBodyPublisher(resp.Body, t.chunkSize),
	}, nil
}

// reasonPhrase extracts "Not Found" from "404 Not Found".
func reasonPhrase(resp *http.Response) string {
	prefix := strconv.Itoa(resp.StatusCode) + " "
	if reason, ok := strings.CutPrefix(resp.Status, prefix); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// bodyPublisher streams an io.ReadCloser to a single subscriber.
type bodyPublisher struct {
	body      io.ReadCloser
	chunkSize int
	used      atomic.Bool
}

// errAlreadySubscribed is delivered to any subscriber after the first.
var errAlreadySubscribed = errors.New("httpclient: body publisher accepts a single subscriber")

func newBodyPublisher(body io.ReadCloser, chunkSize int) *bodyPublisher {
	if body == nil {
		body = http.NoBody
	}
	return &bodyPublisher{body: body, chunkSize: chunkSize}
}

// Subscribe starts streaming the body to s on a dedicated goroutine.
func (p *bodyPublisher) Subscribe(s Subscriber) {
	if !p.used.CompareAndSwap(false, true) {
		s.OnSubscribe(noopSubscription{})
		s.OnError(errAlreadySubscribed)
		return
	}

	sub := &bodySubscription{
		body:     p.body,
		wake:     make(chan struct{}, 1),
		cancelCh: make(chan struct{}),
	}
	s.OnSubscribe(sub)
	go sub.run(s, p.chunkSize)
}

// bodySubscription tracks demand for one body stream.
type bodySubscription struct {
	body   io.ReadCloser
	demand atomic.Int64
	wake   chan struct{}

	cancelOnce sync.Once
	cancelCh   chan struct{}
	closeOnce  sync.Once
}

// Request adds n to the outstanding demand.
func (s *bodySubscription) Request(n int64) {
	if n <= 0 {
		return
	}
	s.demand.Add(n)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Cancel stops the stream and closes the body, which aborts the connection
// if it has not been fully read.
func (s *bodySubscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelCh)
		s.close()
	})
}

func (s *bodySubscription) close() {
	s.closeOnce.Do(func() {
		_ = s.body.Close()
	})
}

func (s *bodySubscription) cancelled() bool {
	select {
	case <-s.cancelCh:
		return true
	default:
		return false
	}
}

// awaitDemand blocks until at least one chunk is requested.
// It returns false when the subscription is cancelled first.
func (s *bodySubscription) awaitDemand() bool {
	for s.demand.Load() <= 0 {
		select {
		case <-s.wake:
		case <-s.cancelCh:
			return false
		}
	}
	return !s.cancelled()
}

func (s *bodySubscription) run(sub Subscriber, chunkSize int) {
	defer s.close()

	buf := make([]byte, chunkSize)
	acked := make(chan struct{}, 1)

	for {
		if !s.awaitDemand() {
			return
		}

		n, err := s.body.Read(buf)
		if s.cancelled() {
			return
		}

		if n > 0 {
			s.demand.Add(-1)
			sub.OnNext(NewChunk(buf[:n], func() {
				select {
				case acked <- struct{}{}:
				default:
				}
			}))

			// The buffer is reused for the next read only after the
			// subscriber released it.
			select {
			case <-acked:
			case <-s.cancelCh:
				return
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			sub.OnComplete()
			return
		default:
			if s.cancelled() {
				return
			}
			sub.OnError(err)
			return
		}
	}
}

// noopSubscription is handed to rejected subscribers.
type noopSubscription struct{}

func (noopSubscription) Request(int64) {}
func (noopSubscription) Cancel()       {}
