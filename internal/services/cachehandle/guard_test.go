package cachehandle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCache struct {
	initCalls   atomic.Int32
	initErr     error
	initPanic   bool
	initBlock   chan struct{}
	initialized atomic.Bool
}

func (f *fakeCache) Initialize(ctx context.Context) error {
	f.initCalls.Add(1)
	if f.initPanic {
		panic("initialize exploded")
	}
	if f.initBlock != nil {
		<-f.initBlock
	}
	if f.initErr != nil {
		return f.initErr
	}
	f.initialized.Store(true)
	return nil
}

func (f *fakeCache) Initialized() bool { return f.initialized.Load() }

func TestEnsureReady_DisabledIsNoop(t *testing.T) {
	h := NewPending(Go(context.Background(), func(context.Context) (any, error) {
		return &fakeCache{}, nil
	}))

	got := EnsureReady(context.Background(), h, false)

	assert.Same(t, h, got)
	assert.Equal(t, StatePending, h.State())
}

func TestEnsureReady_ResolvesPendingAndInitializes(t *testing.T) {
	fc := &fakeCache{}
	h := NewPending(Go(context.Background(), func(context.Context) (any, error) {
		return fc, nil
	}))

	EnsureReady(context.Background(), h, true)

	assert.Equal(t, StateReady, h.State())
	inst, err := h.Instance()
	require.NoError(t, err)
	assert.Same(t, fc, inst)
	assert.Equal(t, int32(1), fc.initCalls.Load())

	// idempotent once ready
	EnsureReady(context.Background(), h, true)
	assert.Equal(t, int32(1), fc.initCalls.Load())
}

func TestEnsureReady_NeverFails(t *testing.T) {
	tests := []struct {
		name      string
		handle    func() *Handle
		wantState State
	}{
		{
			name: "factory error",
			handle: func() *Handle {
				return NewPending(Go(context.Background(), func(context.Context) (any, error) {
					return nil, errors.New("dial tcp: connection refused")
				}))
			},
			wantState: StatePending,
		},
		{
			name: "factory panic",
			handle: func() *Handle {
				return NewPending(Go(context.Background(), func(context.Context) (any, error) {
					panic("boom")
				}))
			},
			wantState: StatePending,
		},
		{
			name: "initialize error",
			handle: func() *Handle {
				return New(&fakeCache{initErr: errors.New("ping timeout")})
			},
			wantState: StateUninitialized,
		},
		{
			name: "initialize panic",
			handle: func() *Handle {
				return New(&fakeCache{initPanic: true})
			},
			wantState: StateUninitialized,
		},
		{
			name: "malformed instance",
			handle: func() *Handle {
				return New(map[string]int{"not": 1})
			},
			wantState: StateReady,
		},
		{
			name:      "nil instance",
			handle:    func() *Handle { return New(nil) },
			wantState: StatePending,
		},
		{
			name:      "zero value handle",
			handle:    func() *Handle { return &Handle{} },
			wantState: StatePending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := tt.handle()
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			assert.NotPanics(t, func() {
				EnsureReady(ctx, h, true)
			})
			assert.Equal(t, tt.wantState, h.State())
		})
	}
}

func TestEnsureReady_NilHandle(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Nil(t, EnsureReady(context.Background(), nil, true))
	})
}

func TestEnsureReady_BoundedByContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	h := NewPending(Go(context.Background(), func(context.Context) (any, error) {
		<-release
		return &fakeCache{}, nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	EnsureReady(ctx, h, true)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StatePending, h.State())

	_, err := h.Instance()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEnsureReady_SlowInitializeBoundedByContext(t *testing.T) {
	fc := &fakeCache{initBlock: make(chan struct{})}
	defer close(fc.initBlock)
	h := New(fc)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	EnsureReady(ctx, h, true)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateUninitialized, h.State())
}

func TestEnsureReady_RetriesAfterFailedInitialize(t *testing.T) {
	fc := &fakeCache{initErr: errors.New("not yet")}
	h := New(fc)

	EnsureReady(context.Background(), h, true)
	assert.Equal(t, StateUninitialized, h.State())

	fc.initErr = nil
	EnsureReady(context.Background(), h, true)
	assert.Equal(t, StateReady, h.State())
	assert.Equal(t, int32(2), fc.initCalls.Load())
}

func TestEnsureReady_ConcurrentCallers(t *testing.T) {
	var built atomic.Int32
	h := NewPending(Go(context.Background(), func(context.Context) (any, error) {
		built.Add(1)
		time.Sleep(10 * time.Millisecond)
		return &fakeCache{}, nil
	}))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EnsureReady(context.Background(), h, true)
		}()
	}
	wg.Wait()

	assert.Equal(t, StateReady, h.State())
	assert.Equal(t, int32(1), built.Load())
}

func TestHandle_Reset(t *testing.T) {
	h := New(&fakeCache{})
	EnsureReady(context.Background(), h, true)
	require.Equal(t, StateReady, h.State())

	next := &fakeCache{}
	h.Reset(Resolved(next))
	assert.Equal(t, StatePending, h.State())

	EnsureReady(context.Background(), h, true)
	inst, err := h.Instance()
	require.NoError(t, err)
	assert.Same(t, next, inst)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "pending", StatePending.String())
	assert.Equal(t, "ready", StateReady.String())
}
