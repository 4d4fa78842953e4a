package cachehandle

import (
	"context"
	"fmt"

	"Confluence/internal/domain/service"
	"Confluence/pkg/logger"
)

// EnsureReady moves h as far towards StateReady as it can within ctx and
// returns it. It never returns an error, never panics and never blocks
// past ctx. With cachingEnabled false it returns h untouched.
//
// Concurrent calls are safe. Two callers may both await the same future or
// both call Initialize; the first to finish wins and the other is a no-op.
func EnsureReady(ctx context.Context, h *Handle, cachingEnabled bool) *Handle {
	if !cachingEnabled || h == nil {
		return h
	}

	defer func() {
		if r := recover(); r != nil {
			h.logOrNop().Warn("cache guard recovered", logger.String("panic", fmt.Sprint(r)))
		}
	}()

	h.mu.RLock()
	state, future, instance, gen := h.state, h.future, h.instance, h.gen
	h.mu.RUnlock()

	switch state {
	case StateReady:
		return h
	case StatePending:
		v, err := future.Await(ctx)
		if err == nil && v == nil {
			err = ErrNilInstance
		}
		if err != nil {
			h.logOrNop().Debug("cache handle still pending", logger.Error(err))
			return h
		}

		h.mu.Lock()
		if h.gen != gen {
			// resolved or reset by another caller meanwhile
			h.mu.Unlock()
			return h
		}
		h.instance = v
		h.future = nil
		h.state = StateUninitialized
		h.gen++
		gen = h.gen
		h.mu.Unlock()
		instance = v
	}

	init, ok := instance.(service.Initializer)
	if !ok || safeInitialized(init) {
		h.markReady(gen)
		return h
	}

	if err := initialize(ctx, init); err != nil {
		h.logOrNop().Debug("cache initialize failed", logger.Error(err))
		return h
	}
	if safeInitialized(init) {
		h.markReady(gen)
	}
	return h
}

func (h *Handle) markReady(gen uint64) {
	h.mu.Lock()
	if h.gen == gen && h.state == StateUninitialized {
		h.state = StateReady
	}
	h.mu.Unlock()
}

// initialize runs Initialize on its own goroutine so an implementation
// that ignores ctx cannot hold the caller.
func initialize(ctx context.Context, init service.Initializer) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("initialize panic: %v", r)
			}
		}()
		done <- init.Initialize(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
