package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"

	"Confluence/internal/domain/models"
	drepo "Confluence/internal/domain/repository"
	"Confluence/internal/services/features"
)

var ErrBadSentiment = errors.New("sentiment score out of range")

// HTTPSentimentProvider asks the external sentiment service for a 0..100
// reading of the crowd mood around symbol.
type HTTPSentimentProvider struct {
	base     *HTTPServiceBase
	attempts int
}

func NewHTTPSentimentProvider(base *HTTPServiceBase) *HTTPSentimentProvider {
	return &HTTPSentimentProvider{base: base, attempts: 2}
}

type sentimentRequest struct {
	Symbol             string    `json:"symbol"`
	Returns            []float64 `json:"returns,omitempty"`
	FundingRate        *float64  `json:"funding_rate,omitempty"`
	PriceChangePercent *float64  `json:"price_change_percent,omitempty"`
}

type sentimentResponse struct {
	Score float64 `json:"score"`
}

func (p *HTTPSentimentProvider) Score(ctx context.Context, symbol string, data *models.MarketData) (float64, error) {
	req := sentimentRequest{Symbol: symbol}
	if data != nil {
		req.Returns = features.ComputeLogReturns(data.Candles)
		req.FundingRate = data.FundingRate
		if data.Ticker != nil {
			pct := data.Ticker.PriceChangePercent
			req.PriceChangePercent = &pct
		}
	}

	var resp sentimentResponse
	if err := p.base.PostJSONWithRetry(ctx, "/sentiment/score", req, &resp, p.attempts); err != nil {
		return 0, fmt.Errorf("post sentiment: %w", err)
	}
	if math.IsNaN(resp.Score) || resp.Score < 0 || resp.Score > 100 {
		return 0, fmt.Errorf("%w: %v", ErrBadSentiment, resp.Score)
	}
	return resp.Score, nil
}

var _ drepo.SentimentProvider = (*HTTPSentimentProvider)(nil)
