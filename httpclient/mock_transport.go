package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
)

// MockTransport is a configurable http.RoundTripper for tests. Plug it in
// with WithRoundTripper or WithMockTransport; the rest of the pipeline,
// including streaming, aggregation and the circuit breaker, runs for real.
//
// Example:
//
//	mock := httpclient.NewMockTransport().
//	    StubPath("/users/1", http.StatusOK, `{"id":1}`)
//	client := httpclient.New(httpclient.WithMockTransport(mock))
type MockTransport struct {
	mu          sync.RWMutex
	stubs       []stub
	fallback    *stub
	requests    []RecordedRequest
	requestHook func(RecordedRequest)
}

// MockResponse describes a stubbed response. Chunks are delivered one per
// body Read, in order, so tests can control how the body is fragmented.
type MockResponse struct {
	StatusCode int
	Header     http.Header
	Trailer    http.Header
	Chunks     [][]byte

	// Err, when set, is returned by the body Read that follows the last
	// chunk instead of io.EOF.
	Err error
}

// RecordedRequest is a request as seen by MockTransport, body included.
type RecordedRequest struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   []byte
}

type stub struct {
	matcher  func(*http.Request) bool
	response *MockResponse
	err      error
}

// NewMockTransport creates a new MockTransport for testing.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func textResponse(statusCode int, body string) *MockResponse {
	return &MockResponse{StatusCode: statusCode, Chunks: [][]byte{[]byte(body)}}
}

// StubResponse stubs all unmatched requests to return the given response.
func (m *MockTransport) StubResponse(statusCode int, body string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{response: textResponse(statusCode, body)}
	return m
}

// StubError stubs all unmatched requests to fail with err.
func (m *MockTransport) StubError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &stub{err: err}
	return m
}

// StubPath stubs requests matching the path to return the given response.
func (m *MockTransport) StubPath(path string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.URL.Path == path
	}, statusCode, body)
}

// StubPathRegex stubs requests matching the path regex to return the given response.
func (m *MockTransport) StubPathRegex(pattern string, statusCode int, body string) *MockTransport {
	re := regexp.MustCompile(pattern)
	return m.StubFunc(func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}, statusCode, body)
}

// StubMethod stubs requests with the given method to return the given response.
func (m *MockTransport) StubMethod(method string, statusCode int, body string) *MockTransport {
	return m.StubFunc(func(req *http.Request) bool {
		return req.Method == method
	}, statusCode, body)
}

// StubFunc stubs requests matching the predicate to return the given response.
func (m *MockTransport) StubFunc(
	matcher func(*http.Request) bool,
	statusCode int,
	body string,
) *MockTransport {
	return m.StubMockResponse(matcher, textResponse(statusCode, body))
}

// StubChunks stubs requests matching the path to stream the given chunks.
func (m *MockTransport) StubChunks(path string, statusCode int, chunks ...string) *MockTransport {
	resp := &MockResponse{StatusCode: statusCode}
	for _, c := range chunks {
		resp.Chunks = append(resp.Chunks, []byte(c))
	}
	return m.StubMockResponse(func(req *http.Request) bool {
		return req.URL.Path == path
	}, resp)
}

// StubMockResponse stubs requests matching the predicate with a full
// response description.
func (m *MockTransport) StubMockResponse(matcher func(*http.Request) bool, resp *MockResponse) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, response: resp})
	return m
}

// StubFuncError stubs requests matching the predicate to return the given error.
func (m *MockTransport) StubFuncError(matcher func(*http.Request) bool, err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stubs = append(m.stubs, stub{matcher: matcher, err: err})
	return m
}

// OnRequest sets a hook that is called for each request.
// Useful for assertions or capturing request details.
func (m *MockTransport) OnRequest(fn func(RecordedRequest)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestHook = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := RecordedRequest{
		Method: req.Method,
		URL:    req.URL,
		Header: req.Header.Clone(),
	}
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			return nil, err
		}
		rec.Body = body
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	hook := m.requestHook
	m.mu.Unlock()

	if hook != nil {
		hook(rec)
	}

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	// First match wins.
	for _, s := range m.stubs {
		if s.matcher(req) {
			return s.respond(req)
		}
	}
	if m.fallback != nil {
		return m.fallback.respond(req)
	}

	return nil, errors.New("no stub found for request: " + req.Method + " " + req.URL.String())
}

func (s stub) respond(req *http.Request) (*http.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	r := s.response

	header := r.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}

	return &http.Response{
		Status:     fmt.Sprintf("%d %s", r.StatusCode, http.StatusText(r.StatusCode)),
		StatusCode: r.StatusCode,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     header,
		Trailer:    r.Trailer.Clone(),
		Body: &chunkReader{
			chunks: r.Chunks,
			err:    r.Err,
			done:   req.Context().Done(),
			ctxErr: req.Context().Err,
		},
		ContentLength: -1,
		Request:       req,
	}, nil
}

// chunkReader returns one chunk per Read. It honors the request context
// like a network body would.
type chunkReader struct {
	chunks [][]byte
	cur    *bytes.Reader
	err    error
	done   <-chan struct{}
	ctxErr func() error
	closed atomic.Bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed.Load() {
		return 0, errors.New("http: read on closed response body")
	}
	select {
	case <-r.done:
		return 0, r.ctxErr()
	default:
	}

	for r.cur == nil || r.cur.Len() == 0 {
		if len(r.chunks) == 0 {
			if r.err != nil {
				return 0, r.err
			}
			return 0, io.EOF
		}
		r.cur = bytes.NewReader(r.chunks[0])
		r.chunks = r.chunks[1:]
		if r.cur.Len() == 0 {
			// Zero-length chunk: surface it as an empty read.
			return 0, nil
		}
	}
	return r.cur.Read(p)
}

func (r *chunkReader) Close() error {
	r.closed.Store(true)
	return nil
}

// Requests returns all requests made through this transport.
func (m *MockTransport) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest{}, m.requests...)
}

// RequestCount returns the number of requests made.
func (m *MockTransport) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// LastRequest returns the most recent request and whether there was one.
func (m *MockTransport) LastRequest() (RecordedRequest, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.requests) == 0 {
		return RecordedRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

// Reset clears all recorded requests and stubs.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.stubs = nil
	m.fallback = nil
	m.requestHook = nil
}

// WithMockTransport is a convenience option that routes every request to
// mock. Connection timeouts and pool settings do not apply.
func WithMockTransport(mock *MockTransport) Option {
	return WithRoundTripper(mock)
}
