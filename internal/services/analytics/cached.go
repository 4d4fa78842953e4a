package analytics

import (
	"context"
	"time"

	"Confluence/internal/domain/models"
	drepo "Confluence/internal/domain/repository"
	"Confluence/pkg/cache"
)

const sentimentKeyPrefix = "sentiment:score:"

// CachedSentimentProvider keeps the last reading per symbol for ttl so a
// publish cycle over many symbols does not call the sentiment service more
// often than the reading can change. Cache errors fall through to inner.
type CachedSentimentProvider struct {
	inner drepo.SentimentProvider
	store cache.Service
	ttl   time.Duration
}

func NewCachedSentimentProvider(inner drepo.SentimentProvider, store cache.Service, ttl time.Duration) *CachedSentimentProvider {
	return &CachedSentimentProvider{inner: inner, store: store, ttl: ttl}
}

func (p *CachedSentimentProvider) Score(ctx context.Context, symbol string, data *models.MarketData) (float64, error) {
	if p.store == nil || p.ttl <= 0 {
		return p.inner.Score(ctx, symbol, data)
	}
	key := sentimentKeyPrefix + symbol

	var v float64
	if err := p.store.Get(ctx, key, &v); err == nil {
		return v, nil
	}

	v, err := p.inner.Score(ctx, symbol, data)
	if err != nil {
		return 0, err
	}
	_ = p.store.Set(ctx, key, v, p.ttl)
	return v, nil
}

var _ drepo.SentimentProvider = (*CachedSentimentProvider)(nil)
