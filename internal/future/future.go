// Package future provides the single-assignment result cell used for
// request/response correlation and readiness signalling.
package future

import (
	"context"
	"sync"
)

// Callback observes the settled outcome of a Future exactly once.
type Callback[T any] func(value T, err error)

// Future is a single-assignment cell settled with exactly one of a
// value or an error. Settling twice is a programming error and panics.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     T
	err       error
	callbacks []Callback[T]
}

// New constructs an unsettled future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved constructs a future already settled with value.
func Resolved[T any](value T) *Future[T] {
	f := New[T]()
	f.Resolve(value)
	return f
}

// Resolve settles the future with a value.
func (f *Future[T]) Resolve(value T) {
	f.settle(value, nil)
}

// Reject settles the future with an error.
func (f *Future[T]) Reject(err error) {
	var zero T
	f.settle(zero, err)
}

func (f *Future[T]) settle(value T, err error) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		panic("future: settled twice")
	}
	f.settled = true
	f.value = value
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	if len(callbacks) == 0 {
		return
	}
	//1.- Fire continuations on a fresh turn, preserving registration order.
	go func() {
		for _, cb := range callbacks {
			cb(value, err)
		}
	}()
}

// Done exposes a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has been resolved or rejected.
func (f *Future[T]) Settled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Result blocks until the future settles or the context ends.
func (f *Future[T]) Result(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Peek returns the settled outcome without blocking.
func (f *Future[T]) Peek() (T, error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err, f.settled
}

// Subscribe registers a continuation fired once after settlement, in
// registration order, on a turn separate from the settling caller.
func (f *Future[T]) Subscribe(cb Callback[T]) {
	if cb == nil {
		return
	}
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	value, err := f.value, f.err
	f.mu.Unlock()
	go cb(value, err)
}
