package cachehandle

import (
	"context"
	"fmt"
)

// Factory builds a cache instance. It runs once, on its own goroutine.
type Factory func(ctx context.Context) (any, error)

// Future is a cache construction that may not have completed yet.
type Future struct {
	done chan struct{}
	val  any
	err  error
}

// Go starts fn immediately and returns its Future. A panic in fn resolves
// the future with an error.
func Go(ctx context.Context, fn Factory) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("cache factory panic: %v", r)
			}
		}()
		f.val, f.err = fn(ctx)
	}()
	return f
}

// Resolved returns a future that already holds v.
func Resolved(v any) *Future {
	f := &Future{done: make(chan struct{}), val: v}
	close(f.done)
	return f
}

// Failed returns a future that already holds err.
func Failed(err error) *Future {
	f := &Future{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Await blocks until the future resolves or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	if f == nil {
		return nil, ErrNilInstance
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done reports whether the future has resolved, without blocking.
func (f *Future) Done() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}
