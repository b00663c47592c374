package httpclient

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Transport dispatches a RequestSpec and returns the response head together
// with a publisher for the streamed body.
//
// Dispatch blocks until response headers arrive or the request fails. A
// returned error is always reported to the caller as a *TransportError.
// Connection pooling, proxies and protocol negotiation are the transport's
// concern.
type Transport interface {
	Dispatch(ctx context.Context, spec *RequestSpec) (*StreamResponse, error)
}

// StreamResponse is the head of a response whose body has not been read yet.
type StreamResponse struct {
	StatusCode int
	Reason     string
	Header     http.Header

	// Trailer is filled by the transport once the body has been fully
	// streamed. It may be nil.
	Trailer http.Header

	// Body publishes the response body chunks. It accepts one subscriber.
	Body Publisher
}

// Publisher is a single-subscriber source of body chunks.
type Publisher interface {
	Subscribe(s Subscriber)
}

// Subscriber receives body chunks from a Publisher.
//
// A publisher calls OnSubscribe first, then OnNext at most as many times as
// requested through the Subscription, then exactly one of OnComplete or
// OnError. Calls for one stream are serial and in send order.
type Subscriber interface {
	OnSubscribe(s Subscription)
	OnNext(c Chunk)
	OnError(err error)
	OnComplete()
}

// Subscription is the subscriber's handle on its publisher.
type Subscription interface {
	// Request adds n to the number of chunks the publisher may send.
	Request(n int64)
	// Cancel stops the stream and releases its resources.
	Cancel()
}

// Chunk is one fragment of a streamed body. Data is only valid until Ack is
// called; the publisher may reuse the backing array afterwards.
type Chunk struct {
	Data []byte
	ack  func()
}

// NewChunk creates a chunk whose acknowledgment invokes ack.
func NewChunk(data []byte, ack func()) Chunk {
	return Chunk{Data: data, ack: ack}
}

// Ack signals that the chunk has been processed and its buffer may be reused.
func (c Chunk) Ack() {
	if c.ack != nil {
		c.ack()
	}
}

// RequestSpec is an immutable description of one outgoing request.
// It is built once per call and owned by that call.
type RequestSpec struct {
	method      string
	url         string
	header      http.Header
	query       url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

// Method returns the HTTP method.
func (s *RequestSpec) Method() string { return s.method }

// URL returns the full target URL including the encoded query string.
func (s *RequestSpec) URL() string {
	if len(s.query) == 0 {
		return s.url
	}
	sep := "?"
	if strings.Contains(s.url, "?") {
		sep = "&"
	}
	return s.url + sep + s.query.Encode()
}

// Header returns a copy of the request headers.
func (s *RequestSpec) Header() http.Header { return s.header.Clone() }

// Query returns a copy of the query parameters.
func (s *RequestSpec) Query() url.Values {
	q := make(url.Values, len(s.query))
	for k, v := range s.query {
		q[k] = append([]string(nil), v...)
	}
	return q
}

// Body returns a copy of the serialized request body, or nil.
func (s *RequestSpec) Body() []byte {
	if s.body == nil {
		return nil
	}
	return append([]byte(nil), s.body...)
}

// ContentType returns the body content type, or "" when there is no body.
func (s *RequestSpec) ContentType() string { return s.contentType }

// Timeout returns the bound on the request-to-completion lifetime.
func (s *RequestSpec) Timeout() time.Duration { return s.timeout }
