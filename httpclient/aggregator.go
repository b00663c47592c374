package httpclient

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
)

// CompletedResponse is a fully aggregated response. It is produced once per
// request and never holds a partially assembled body.
type CompletedResponse struct {
	StatusCode int
	Reason     string

	// Body is the exact concatenation of all received chunks. It is empty,
	// never nil, when the response had no body.
	Body []byte

	// Headers holds the response headers and trailers captured when the
	// stream completed. Keys are canonical; for repeated names the last
	// value wins.
	Headers map[string]string
}

// Header returns the value of the named header, matched case-insensitively.
func (r *CompletedResponse) Header(name string) string {
	return r.Headers[http.CanonicalHeaderKey(name)]
}

// Aggregator is a single-use Subscriber that buffers the body chunks of one
// response and assembles them into a CompletedResponse.
//
// It keeps a flow-control window of one chunk: every chunk is copied,
// acknowledged, and only then is the next one requested. Chunk callbacks
// are expected to be serial, so the buffer itself is not locked.
type Aggregator struct {
	head   *StreamResponse
	logger zerolog.Logger

	chunks [][]byte
	size   int

	mu        sync.Mutex
	upstream  Subscription
	cancelled bool

	once sync.Once
	done chan struct{}
	resp *CompletedResponse
	err  error
}

// NewAggregator creates an aggregator for the given response head.
func NewAggregator(head *StreamResponse, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		head:   head,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// OnSubscribe stores the upstream handle and requests the first chunk.
func (a *Aggregator) OnSubscribe(s Subscription) {
	a.mu.Lock()
	if a.cancelled {
		a.mu.Unlock()
		s.Cancel()
		return
	}
	a.upstream = s
	a.mu.Unlock()

	s.Request(1)
}

// OnNext copies the chunk, acknowledges it and requests one more.
func (a *Aggregator) OnNext(c Chunk) {
	if a.isDone() {
		c.Ack()
		return
	}

	if len(c.Data) > 0 {
		buf := make([]byte, len(c.Data))
		copy(buf, c.Data)
		a.chunks = append(a.chunks, buf)
		a.size += len(buf)
	}
	c.Ack()

	if up := a.subscription(); up != nil {
		up.Request(1)
	}
}

// OnComplete assembles the buffered chunks and emits the CompletedResponse.
func (a *Aggregator) OnComplete() {
	body := make([]byte, 0, a.size)
	for _, chunk := range a.chunks {
		body = append(body, chunk...)
	}
	a.chunks = nil

	resp := &CompletedResponse{
		StatusCode: a.head.StatusCode,
		Reason:     a.head.Reason,
		Body:       body,
		Headers:    flattenHeaders(a.head.Header, a.head.Trailer),
	}

	a.finish(resp, nil)
}

// OnError discards any buffered bytes and emits a *TransportError.
func (a *Aggregator) OnError(err error) {
	a.chunks = nil
	a.size = 0
	a.finish(nil, &TransportError{Err: err})
}

// Cancel stops the upstream stream. Without an upstream there is nothing to
// release and the call is a no-op.
func (a *Aggregator) Cancel() {
	a.mu.Lock()
	a.cancelled = true
	up := a.upstream
	a.mu.Unlock()

	if up == nil {
		a.logger.Debug().Msg("aggregator cancelled before upstream subscription")
		return
	}
	up.Cancel()
}

// Done is closed once a result is available.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Result returns the completed response or the stream failure.
// It must only be called after Done is closed.
func (a *Aggregator) Result() (*CompletedResponse, error) {
	return a.resp, a.err
}

func (a *Aggregator) subscription() Subscription {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.upstream
}

func (a *Aggregator) isDone() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}

func (a *Aggregator) finish(resp *CompletedResponse, err error) {
	a.once.Do(func() {
		a.resp = resp
		a.err = err
		close(a.done)
	})
}

// flattenHeaders merges headers and trailers into a single-valued map.
// Later values overwrite earlier ones.
func flattenHeaders(sets ...http.Header) map[string]string {
	out := make(map[string]string)
	for _, h := range sets {
		for k, v := range h {
			if len(v) == 0 {
				continue
			}
			out[http.CanonicalHeaderKey(k)] = v[len(v)-1]
		}
	}
	return out
}
