package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotRunning  = errors.New("queue not running")
	ErrUnknownType = errors.New("no job registered for type")
	// ErrDuplicate is returned by EnqueueUnique when an equal job is already pending.
	ErrDuplicate = errors.New("job already pending")
)

// Enqueuer is the producer side used by HTTP handlers.
type Enqueuer interface {
	Enqueue(ctx context.Context, msgType string, payload any) (string, error)
	EnqueueUnique(ctx context.Context, msgType, dedupeKey string, payload any) (string, error)
}

// Config controls workers and retry behavior.
type Config struct {
	Workers    int
	PollEvery  time.Duration // BRPOP block timeout
	RetryLimit int
	RetryDelay time.Duration
	DedupeTTL  time.Duration
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	DedupeKey string          `json:"dedupe_key,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Decode unmarshals a job payload into T.
func Decode[T any](payload json.RawMessage) (*T, error) {
	var out T
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload")
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}
