package httpclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/kroma-labs/sentinel-reactive/httpclient/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHead(status int) *StreamResponse {
	return &StreamResponse{
		StatusCode: status,
		Reason:     http.StatusText(status),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestAggregator_Concatenation(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{
			name:   "given no chunks, then body is empty",
			chunks: nil,
			want:   "",
		},
		{
			name:   "given a single chunk, then body equals it",
			chunks: []string{`{"foo":"bar"}`},
			want:   `{"foo":"bar"}`,
		},
		{
			name:   "given several chunks, then body preserves order",
			chunks: []string{`{"fo`, `o":"b`, `ar"}`},
			want:   `{"foo":"bar"}`,
		},
		{
			name:   "given zero-length chunks in between, then they contribute nothing",
			chunks: []string{"", "ab", "", "", "cd", ""},
			want:   "abcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := mocks.NewSubscription(t)
			sub.EXPECT().Request(int64(1)).Return().Times(len(tt.chunks) + 1)

			agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
			agg.OnSubscribe(sub)

			acks := 0
			for _, c := range tt.chunks {
				agg.OnNext(NewChunk([]byte(c), func() { acks++ }))
			}
			agg.OnComplete()

			<-agg.Done()
			resp, err := agg.Result()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(resp.Body))
			assert.NotNil(t, resp.Body)
			assert.Equal(t, len(tt.chunks), acks)
		})
	}
}

func TestAggregator_CopiesChunkData(t *testing.T) {
	sub := mocks.NewSubscription(t)
	sub.EXPECT().Request(int64(1)).Return()

	agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
	agg.OnSubscribe(sub)

	buf := []byte("hello")
	agg.OnNext(NewChunk(buf, nil))
	copy(buf, "XXXXX") // publisher reuses its buffer after the ack
	agg.OnComplete()

	resp, err := agg.Result()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp.Body))
}

func TestAggregator_OnComplete_Headers(t *testing.T) {
	head := newTestHead(http.StatusCreated)
	head.Header.Add("X-Multi", "first")
	head.Header.Add("X-Multi", "second")
	head.Trailer = http.Header{"X-Checksum": []string{"abc"}}

	agg := NewAggregator(head, zerolog.Nop())
	agg.OnComplete()

	resp, err := agg.Result()
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Created", resp.Reason)
	assert.Equal(t, "application/json", resp.Header("content-type"))
	assert.Equal(t, "second", resp.Header("X-Multi"))
	assert.Equal(t, "abc", resp.Header("X-Checksum"))
}

func TestAggregator_OnError(t *testing.T) {
	sub := mocks.NewSubscription(t)
	sub.EXPECT().Request(int64(1)).Return()

	agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
	agg.OnSubscribe(sub)
	agg.OnNext(NewChunk([]byte("partial"), nil))

	cause := errors.New("connection reset by peer")
	agg.OnError(cause)

	<-agg.Done()
	resp, err := agg.Result()
	assert.Nil(t, resp)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, cause)
}

func TestAggregator_Cancel(t *testing.T) {
	t.Run("given no upstream, then cancel is a no-op", func(t *testing.T) {
		agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
		assert.NotPanics(t, agg.Cancel)
		assert.NotPanics(t, agg.Cancel)
	})

	t.Run("given an upstream, then cancel is forwarded", func(t *testing.T) {
		sub := mocks.NewSubscription(t)
		sub.EXPECT().Request(int64(1)).Return().Once()
		sub.EXPECT().Cancel().Return().Once()

		agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
		agg.OnSubscribe(sub)
		agg.Cancel()
	})

	t.Run("given cancel before subscribe, then the late upstream is cancelled", func(t *testing.T) {
		sub := mocks.NewSubscription(t)
		sub.EXPECT().Cancel().Return().Once()

		agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
		agg.Cancel()
		agg.OnSubscribe(sub)
	})
}

func TestAggregator_FinishesOnce(t *testing.T) {
	agg := NewAggregator(newTestHead(http.StatusOK), zerolog.Nop())
	agg.OnComplete()
	agg.OnError(errors.New("late failure"))

	resp, err := agg.Result()
	require.NoError(t, err)
	assert.NotNil(t, resp)

	acked := false
	agg.OnNext(NewChunk([]byte("late"), func() { acked = true }))
	assert.True(t, acked, "chunks after completion are still acknowledged")
}
