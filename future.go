package auth

import (
	"context"
	"sync"
)

// Future is a one-shot value that many goroutines may await. It resolves
// exactly once; later Resolve calls are ignored and late waiters get the
// resolved value immediately.
type Future[T any] struct {
	once  sync.Once
	done  chan struct{}
	value T
	err   error
}

// NewFuture returns an unresolved future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve sets the value. It reports whether this call resolved the future.
func (f *Future[T]) Resolve(value T, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the future resolves.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved returns the value without blocking.
func (f *Future[T]) Resolved() (T, bool) {
	select {
	case <-f.done:
		return f.value, true
	default:
		var zero T
		return zero, false
	}
}

// Err returns the resolution error, nil while unresolved.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// Wait blocks until the future resolves or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
