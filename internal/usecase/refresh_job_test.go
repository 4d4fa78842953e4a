package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"Confluence/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSymbolPublisher struct {
	ok      bool
	symbols []string
}

func (s *stubSymbolPublisher) PublishSymbol(_ context.Context, symbol string) (*models.Breakdown, bool) {
	s.symbols = append(s.symbols, symbol)
	if !s.ok {
		return nil, false
	}
	return &models.Breakdown{Symbol: symbol, OverallScore: 55, Sentiment: models.SentimentNeutral}, true
}

type stubInvalidator struct {
	calls []string
	err   error
}

func (s *stubInvalidator) Invalidate(_ context.Context, symbol string) error {
	s.calls = append(s.calls, symbol)
	return s.err
}

func TestRefreshJob_Handle(t *testing.T) {
	pub := &stubSymbolPublisher{ok: true}
	inv := &stubInvalidator{err: errors.New("redis down")}
	job := NewRefreshJob(pub, inv, nil)

	assert.Equal(t, RefreshJobType, job.Type())

	payload, _ := json.Marshal(RefreshRequest{Symbol: "btcusdt", Invalidate: true})
	require.NoError(t, job.Handle(context.Background(), payload))
	assert.Equal(t, []string{"BTCUSDT"}, pub.symbols)
	// invalidation failure is logged, not fatal
	assert.Equal(t, []string{"BTCUSDT"}, inv.calls)

	payload, _ = json.Marshal(RefreshRequest{Symbol: "ETHUSDT"})
	require.NoError(t, job.Handle(context.Background(), payload))
	assert.Len(t, inv.calls, 1)
}

func TestRefreshJob_Errors(t *testing.T) {
	job := NewRefreshJob(&stubSymbolPublisher{ok: false}, nil, nil)

	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`{"symbol":""}`)))
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`nope`)))
	assert.Error(t, job.Handle(context.Background(), json.RawMessage(`{"symbol":"BTCUSDT"}`)))
}
