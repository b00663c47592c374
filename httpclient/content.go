package httpclient

import (
	"maps"
)

// ContentProvider supplies everything a request carries besides its method
// and path. Implementations must be safe to read from the goroutine that
// builds the request.
type ContentProvider interface {
	// Headers returns request headers. May be empty, never nil.
	Headers() map[string]string
	// Parameters returns query parameters. May be empty, never nil.
	Parameters() map[string]string
	// Body returns the body producer, or nil when the request has no body.
	Body() BodyProducer
}

// BodyProducer serializes a request body on demand. Produce is called once,
// right before the request is dispatched, and only if the circuit breaker
// admitted the call.
type BodyProducer interface {
	ContentType() string
	Produce() ([]byte, error)
}

// ClientContext carries headers that are attached to a request on top of the
// content provider headers. On a name collision the context value wins.
type ClientContext struct {
	Headers map[string]string
}

// NewClientContext returns a ClientContext holding a copy of headers.
func NewClientContext(headers map[string]string) ClientContext {
	h := make(map[string]string, len(headers))
	maps.Copy(h, headers)
	return ClientContext{Headers: h}
}

// With returns a copy of c with one more header.
func (c ClientContext) With(key, value string) ClientContext {
	next := NewClientContext(c.Headers)
	next.Headers[key] = value
	return next
}

// ContentOption configures a content provider built by this package.
type ContentOption func(*content)

// content is the ContentProvider returned by NoContent, RawContent and
// JSONContent.
type content struct {
	headers   map[string]string
	params    map[string]string
	clientCtx ClientContext
	body      BodyProducer
	bodyCodec Codec
}

var _ ContentProvider = (*content)(nil)

// NoContent returns a provider without a body.
//
// Example:
//
//	cp := httpclient.NoContent(
//	    httpclient.WithParameter("page", "2"),
//	    httpclient.WithHeader("Accept", "application/json"),
//	)
func NoContent(opts ...ContentOption) ContentProvider {
	return newContent(opts)
}

// RawContent returns a provider whose body is data, sent as is.
func RawContent(contentType string, data []byte, opts ...ContentOption) ContentProvider {
	c := newContent(opts)
	c.body = rawBody{contentType: contentType, data: append([]byte(nil), data...)}
	return c
}

// JSONContent returns a provider whose body is value serialized with the body
// codec (JSON unless WithBodyCodec says otherwise). Serialization is deferred
// until the request is built; a failure is reported as a *RequestError.
//
// Example:
//
//	cp := httpclient.JSONContent(
//	    map[string]string{"foo": "special foo"},
//	    httpclient.WithHeader("x-y", "1234"),
//	)
func JSONContent(value any, opts ...ContentOption) ContentProvider {
	c := newContent(opts)
	if c.bodyCodec == nil {
		c.bodyCodec = JSONCodec{}
	}
	c.body = codecBody{codec: c.bodyCodec, value: value}
	return c
}

func newContent(opts []ContentOption) *content {
	c := &content{
		headers: make(map[string]string),
		params:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Headers returns the provider headers merged with the client context
// headers. Context headers are applied last.
func (c *content) Headers() map[string]string {
	out := make(map[string]string, len(c.headers)+len(c.clientCtx.Headers))
	maps.Copy(out, c.headers)
	maps.Copy(out, c.clientCtx.Headers)
	return out
}

func (c *content) Parameters() map[string]string {
	return maps.Clone(c.params)
}

func (c *content) Body() BodyProducer {
	return c.body
}

// WithHeader adds one request header.
func WithHeader(key, value string) ContentOption {
	return func(c *content) {
		c.headers[key] = value
	}
}

// WithHeaders adds request headers.
func WithHeaders(headers map[string]string) ContentOption {
	return func(c *content) {
		maps.Copy(c.headers, headers)
	}
}

// WithParameter adds one query parameter.
func WithParameter(key, value string) ContentOption {
	return func(c *content) {
		c.params[key] = value
	}
}

// WithParameters adds query parameters.
func WithParameters(params map[string]string) ContentOption {
	return func(c *content) {
		maps.Copy(c.params, params)
	}
}

// WithClientContext attaches context headers that override provider headers.
func WithClientContext(ctx ClientContext) ContentOption {
	return func(c *content) {
		c.clientCtx = NewClientContext(ctx.Headers)
	}
}

// WithBodyCodec sets the codec JSONContent serializes its value with.
func WithBodyCodec(codec Codec) ContentOption {
	return func(c *content) {
		c.bodyCodec = codec
	}
}

// rawBody is a BodyProducer for pre-serialized bytes.
type rawBody struct {
	contentType string
	data        []byte
}

func (b rawBody) ContentType() string { return b.contentType }

func (b rawBody) Produce() ([]byte, error) {
	return append([]byte(nil), b.data...), nil
}

// codecBody is a BodyProducer that serializes value lazily.
type codecBody struct {
	codec Codec
	value any
}

func (b codecBody) ContentType() string { return b.codec.ContentType() }

func (b codecBody) Produce() ([]byte, error) {
	return b.codec.Marshal(b.value)
}
