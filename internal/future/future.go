// SPDX-License-Identifier: MIT

// Package future provides the single-resolution promise behind access
// requests, where several callers may be waiting on the same pending
// grant. A future resolves exactly once; later resolutions are
// rejected, and any number of callers may await the result.
package future

import (
	"context"
	"sync"
)

type Future[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	val      T
	err      error
	resolved bool
}

func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve settles the future. It reports whether this call won; a
// false return means the future was already settled and nothing
// changed.
func (f *Future[T]) Resolve(val T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.val = val
	f.err = err
	f.resolved = true
	close(f.done)
	return true
}

// Await blocks until the future settles or the context ends. A context
// error does not settle the future; other callers keep waiting.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done closes once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the future has settled.
func (f *Future[T]) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}
