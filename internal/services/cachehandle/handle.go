package cachehandle

import (
	"errors"
	"fmt"
	"sync"

	"Confluence/internal/domain/service"
	"Confluence/pkg/logger"
)

var (
	ErrNotReady    = errors.New("cachehandle: instance not resolved")
	ErrNilInstance = errors.New("cachehandle: factory returned nil instance")
)

// State is the lifecycle position of a Handle.
type State int

const (
	StatePending State = iota
	StateUninitialized
	StateReady
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Handle is a cache reference that is pending, resolved but uninitialized,
// or ready. Callers go through EnsureReady and Instance, never a raw field.
type Handle struct {
	mu       sync.RWMutex
	state    State
	future   *Future
	instance any
	// gen changes whenever instance or future is replaced.
	gen uint64
	log *logger.Logger
}

type Option func(*Handle)

func WithLogger(l *logger.Logger) Option {
	return func(h *Handle) {
		if l != nil {
			h.log = l
		}
	}
}

// NewPending wraps a construction that may still be running.
func NewPending(f *Future, opts ...Option) *Handle {
	h := &Handle{state: StatePending, future: f, log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	if f == nil {
		h.future = Failed(ErrNilInstance)
	}
	return h
}

// New wraps an already constructed instance.
func New(instance any, opts ...Option) *Handle {
	if instance == nil {
		return NewPending(Failed(ErrNilInstance), opts...)
	}
	h := &Handle{log: logger.Nop()}
	for _, opt := range opts {
		opt(h)
	}
	h.setInstance(instance)
	return h
}

func (h *Handle) logOrNop() *logger.Logger {
	if h.log == nil {
		return logger.Nop()
	}
	return h.log
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	if h == nil {
		return StatePending
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Instance returns the resolved instance, which may still be uninitialized.
func (h *Handle) Instance() (any, error) {
	if h == nil {
		return nil, ErrNotReady
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state == StatePending {
		return nil, ErrNotReady
	}
	return h.instance, nil
}

// Reset drops the handle back to pending on a new future. A nil future
// leaves the handle pending forever, which disables caching through it.
func (h *Handle) Reset(f *Future) {
	if f == nil {
		f = Failed(ErrNilInstance)
	}
	h.mu.Lock()
	h.state = StatePending
	h.future = f
	h.instance = nil
	h.gen++
	h.mu.Unlock()
}

// setInstance must not be called with h.mu held.
func (h *Handle) setInstance(instance any) {
	state := StateReady
	if init, ok := instance.(service.Initializer); ok && !safeInitialized(init) {
		state = StateUninitialized
	}
	h.mu.Lock()
	h.instance = instance
	h.future = nil
	h.state = state
	h.gen++
	h.mu.Unlock()
}

func safeInitialized(init service.Initializer) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return init.Initialized()
}
