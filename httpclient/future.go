package httpclient

import (
	"context"
	"sync"
)

// Future is the single-value result of an asynchronous call.
//
// It completes exactly once, with either a value or a typed error, and is
// always completed from a goroutine other than the caller's. Calls
// returning a Future never block.
//
// Example:
//
//	f := httpclient.Get(ctx, client, "/users/1", httpclient.NoContent(), httpclient.JSON[User]())
//	user, err := f.Await(ctx)
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error

	mu        sync.Mutex
	onCancel  func()
	cancelled bool
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Done is closed when the future has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the future completes or ctx ends. A completed future
// always yields its result, even when ctx has ended too. When ctx ends first
// the call keeps running; use Cancel to abandon it.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if !f.wait(ctx) {
		var zero T
		return zero, ctx.Err()
	}
	return f.value, f.err
}

// Outcome is Await folded into an Outcome. If ctx ends first, the outcome is
// a *TransportError wrapping ctx.Err().
func (f *Future[T]) Outcome(ctx context.Context) Outcome[T] {
	if !f.wait(ctx) {
		return Outcome[T]{Kind: KindTransportError, Err: &TransportError{Err: ctx.Err()}}
	}
	return newOutcome(f.value, f.err)
}

// wait reports false when ctx ended before the future completed.
func (f *Future[T]) wait(ctx context.Context) bool {
	select {
	case <-f.done:
		return true
	default:
	}

	select {
	case <-f.done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Cancel abandons the call. If it has not completed yet, the future completes
// with a *TransportError wrapping context.Canceled and any response still
// streaming is released.
func (f *Future[T]) Cancel() {
	var zero T
	if !f.complete(zero, &TransportError{Err: context.Canceled}) {
		return
	}

	f.mu.Lock()
	f.cancelled = true
	fn := f.onCancel
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// setCancel registers the hook run by Cancel. If the future was already
// cancelled, fn runs immediately.
func (f *Future[T]) setCancel(fn func()) {
	f.mu.Lock()
	f.onCancel = fn
	cancelled := f.cancelled
	f.mu.Unlock()
	if cancelled && fn != nil {
		fn()
	}
}

// complete reports whether this call was the one that completed f.
func (f *Future[T]) complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value = v
		f.err = err
		completed = true
		close(f.done)
	})
	return completed
}
