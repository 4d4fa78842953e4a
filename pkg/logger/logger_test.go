package logger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	mu      sync.Mutex
	batches [][]AggregatedLogEntry
	done    chan struct{}
}

func (p *capturePublisher) PublishMessage(_ context.Context, _ string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, payload.([]AggregatedLogEntry))
	select {
	case p.done <- struct{}{}:
	default:
	}
	return nil
}

func TestNew_InvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Output: "stdout"})
	require.Error(t, err)
}

func TestNew_DefaultsLevelAndOutput(t *testing.T) {
	l, err := New(&Config{})
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestLogCollector_DeduplicatesRepeatedErrors(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 100,
		Topic:          "confluence.logs",
		Publisher:      pub,
	})
	defer c.Close()

	fields := map[string]interface{}{"symbol": "BTCUSDT"}
	c.AddLog("error", "publish failed", fields, "publisher.go:10")
	c.AddLog("error", "publish failed", fields, "publisher.go:10")
	c.AddLog("error", "publish failed", map[string]interface{}{"symbol": "ETHUSDT"}, "publisher.go:10")

	assert.Equal(t, 2, c.Pending())
}

func TestLogCollector_FlushesAtThreshold(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour,
		CountThreshold: 2,
		Topic:          "confluence.logs",
		Publisher:      pub,
	})
	defer c.Close()

	c.AddLog("error", "a", nil, "x.go:1")
	c.AddLog("error", "b", nil, "x.go:2")

	select {
	case <-pub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not flush")
	}
	assert.Equal(t, 0, c.Pending())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
}

func TestLogger_ErrorFeedsCollector(t *testing.T) {
	pub := &capturePublisher{done: make(chan struct{}, 1)}
	l := Nop()
	l.AddCollector(&CollectionConfig{TimeInterval: time.Hour, CountThreshold: 10, Publisher: pub})
	defer l.RemoveCollector()

	child := l.With(String("component", "publisher"))
	child.Error("write failed", Error(errors.New("boom")))
	child.Warn("not collected")

	assert.Equal(t, 1, l.collector.Pending())
}
