package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSubscriber collects chunks and requests one more after each,
// unless manual is set.
type recordingSubscriber struct {
	mu       sync.Mutex
	sub      Subscription
	chunks   []string
	err      error
	complete bool
	manual   bool
	done     chan struct{}
	once     sync.Once
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{done: make(chan struct{})}
}

func (r *recordingSubscriber) OnSubscribe(s Subscription) {
	r.mu.Lock()
	r.sub = s
	r.mu.Unlock()
	if !r.manual {
		s.Request(1)
	}
}

func (r *recordingSubscriber) OnNext(c Chunk) {
	r.mu.Lock()
	r.chunks = append(r.chunks, string(c.Data))
	r.mu.Unlock()
	c.Ack()
	if !r.manual {
		r.sub.Request(1)
	}
}

func (r *recordingSubscriber) OnError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recordingSubscriber) OnComplete() {
	r.mu.Lock()
	r.complete = true
	r.mu.Unlock()
	r.once.Do(func() { close(r.done) })
}

func (r *recordingSubscriber) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.chunks...)
}

// trackingBody is an io.ReadCloser over chunks that counts reads.
type trackingBody struct {
	chunkReader
	reads  atomic.Int32
	closes atomic.Int32
}

func newTrackingBody(chunks ...string) *trackingBody {
	b := &trackingBody{}
	for _, c := range chunks {
		b.chunks = append(b.chunks, []byte(c))
	}
	b.ctxErr = func() error { return nil }
	return b
}

func (b *trackingBody) Read(p []byte) (int, error) {
	b.reads.Add(1)
	return b.chunkReader.Read(p)
}

func (b *trackingBody) Close() error {
	b.closes.Add(1)
	return b.chunkReader.Close()
}

func TestBodyPublisher_Streaming(t *testing.T) {
	tests := []struct {
		name      string
		chunks    []string
		chunkSize int
		want      []string
	}{
		{
			name:      "given chunks, then delivers them in order",
			chunks:    []string{"a", "bc", "def"},
			chunkSize: 16,
			want:      []string{"a", "bc", "def"},
		},
		{
			name:      "given chunks larger than the buffer, then splits them",
			chunks:    []string{"abcdef"},
			chunkSize: 4,
			want:      []string{"abcd", "ef"},
		},
		{
			name:      "given zero-length reads, then skips them",
			chunks:    []string{"", "x", "", "y"},
			chunkSize: 16,
			want:      []string{"x", "y"},
		},
		{
			name:      "given an empty body, then completes without chunks",
			chunks:    nil,
			chunkSize: 16,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := newTrackingBody(tt.chunks...)
			sub := newRecordingSubscriber()

			newBodyPublisher(body, tt.chunkSize).Subscribe(sub)

			select {
			case <-sub.done:
			case <-time.After(2 * time.Second):
				t.Fatal("stream did not complete")
			}

			assert.True(t, sub.complete)
			assert.NoError(t, sub.err)
			assert.Equal(t, tt.want, sub.received())
			assert.Eventually(t, func() bool { return body.closes.Load() == 1 }, time.Second, 5*time.Millisecond)
		})
	}
}

func TestBodyPublisher_DemandDriven(t *testing.T) {
	body := newTrackingBody("one", "two")
	sub := newRecordingSubscriber()
	sub.manual = true

	newBodyPublisher(body, 16).Subscribe(sub)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), body.reads.Load(), "no read before demand")

	sub.sub.Request(1)
	assert.Eventually(t, func() bool { return len(sub.received()) == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"one"}, sub.received(), "no second chunk without demand")

	sub.sub.Request(2)
	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}
	assert.Equal(t, []string{"one", "two"}, sub.received())
	assert.True(t, sub.complete)
}

func TestBodyPublisher_WaitsForAck(t *testing.T) {
	body := newTrackingBody("first", "second")

	var (
		mu    sync.Mutex
		first Chunk
	)
	got := make(chan struct{}, 2)
	sub := &funcSubscriber{
		onSubscribe: func(s Subscription) { s.Request(10) },
		onNext: func(c Chunk) {
			mu.Lock()
			if first.Data == nil {
				first = c
			}
			mu.Unlock()
			got <- struct{}{}
		},
	}

	newBodyPublisher(body, 16).Subscribe(sub)
	<-got

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), body.reads.Load(), "buffer is not reused before ack")

	mu.Lock()
	first.Ack()
	mu.Unlock()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("second chunk not delivered after ack")
	}
}

func TestBodyPublisher_Cancel(t *testing.T) {
	body := newTrackingBody("one", "two")
	sub := newRecordingSubscriber()
	sub.manual = true

	newBodyPublisher(body, 16).Subscribe(sub)
	sub.sub.Cancel()
	sub.sub.Cancel()

	assert.Eventually(t, func() bool { return body.closes.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.sub.Request(1)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, sub.received())
	assert.False(t, sub.complete)
	assert.NoError(t, sub.err)
}

func TestBodyPublisher_ReadError(t *testing.T) {
	body := newTrackingBody("partial")
	cause := errors.New("unexpected EOF")
	body.err = cause
	sub := newRecordingSubscriber()

	newBodyPublisher(body, 16).Subscribe(sub)
	<-sub.done

	assert.Equal(t, []string{"partial"}, sub.received())
	assert.ErrorIs(t, sub.err, cause)
	assert.False(t, sub.complete)
}

func TestBodyPublisher_SingleSubscriber(t *testing.T) {
	pub := newBodyPublisher(io.NopCloser(strings.NewReader("x")), 16)

	first := newRecordingSubscriber()
	pub.Subscribe(first)
	<-first.done

	second := newRecordingSubscriber()
	pub.Subscribe(second)
	<-second.done
	assert.ErrorIs(t, second.err, errAlreadySubscribed)
}

func TestHTTPTransport_Dispatch(t *testing.T) {
	type seen struct{ contentType, query, body string }
	seenCh := make(chan seen, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		seenCh <- seen{r.Header.Get("Content-Type"), r.URL.RawQuery, string(b)}
		w.Header().Set("X-Server", "test")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("accepted"))
	}))
	defer server.Close()

	tr := newHTTPTransport(newConfig())
	spec := &RequestSpec{
		method:      http.MethodPost,
		url:         server.URL + "/jobs",
		header:      http.Header{},
		query:       map[string][]string{"page": {"2"}},
		body:        []byte(`{"a":1}`),
		contentType: "application/json",
	}

	head, err := tr.Dispatch(context.Background(), spec)
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, head.StatusCode)
	assert.Equal(t, "Accepted", head.Reason)
	assert.Equal(t, "test", head.Header.Get("X-Server"))

	sub := newRecordingSubscriber()
	head.Body.Subscribe(sub)
	<-sub.done

	assert.Equal(t, "accepted", strings.Join(sub.received(), ""))

	got := <-seenCh
	assert.Equal(t, "application/json", got.contentType)
	assert.Equal(t, "page=2", got.query)
	assert.JSONEq(t, `{"a":1}`, got.body)
}

func TestHTTPTransport_DispatchError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	addr := server.URL
	server.Close()

	tr := newHTTPTransport(newConfig())
	_, err := tr.Dispatch(context.Background(), &RequestSpec{
		method: http.MethodGet,
		url:    addr,
		header: http.Header{},
	})
	require.Error(t, err)
}

func TestReasonPhrase(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
		want string
	}{
		{
			name: "given a standard status line, then strips the code",
			resp: &http.Response{StatusCode: 404, Status: "404 Not Found"},
			want: "Not Found",
		},
		{
			name: "given a custom reason, then keeps it",
			resp: &http.Response{StatusCode: 200, Status: "200 Fine"},
			want: "Fine",
		},
		{
			name: "given no status line, then falls back to the status text",
			resp: &http.Response{StatusCode: 503},
			want: "Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reasonPhrase(tt.resp))
		})
	}
}

// funcSubscriber adapts callbacks to Subscriber.
type funcSubscriber struct {
	onSubscribe func(Subscription)
	onNext      func(Chunk)
	onError     func(error)
	onComplete  func()
}

func (f *funcSubscriber) OnSubscribe(s Subscription) {
	if f.onSubscribe != nil {
		f.onSubscribe(s)
	}
}

func (f *funcSubscriber) OnNext(c Chunk) {
	if f.onNext != nil {
		f.onNext(c)
	}
}

func (f *funcSubscriber) OnError(err error) {
	if f.onError != nil {
		f.onError(err)
	}
}

func (f *funcSubscriber) OnComplete() {
	if f.onComplete != nil {
		f.onComplete()
	}
}
