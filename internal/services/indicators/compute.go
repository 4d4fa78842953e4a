package indicators

import (
	"errors"
	"fmt"
	"math"

	"Confluence/internal/domain/models"
)

var (
	ErrInsufficientData = errors.New("indicators: insufficient data")
	ErrUnknownKind      = errors.New("indicators: unknown indicator kind")
)

type computeFunc func(data *models.MarketData) (float64, error)

var computers = map[Kind]computeFunc{
	KindRSI:               rsiScore,
	KindMACD:              macdScore,
	KindEMATrend:          emaTrendScore,
	KindStochastic:        stochasticScore,
	KindVolumeRatio:       volumeRatioScore,
	KindOBVTrend:          obvTrendScore,
	KindCMF:               cmfScore,
	KindVWAPDeviation:     vwapDeviationScore,
	KindTradeDelta:        tradeDeltaScore,
	KindLargeTradeBias:    largeTradeBiasScore,
	KindBookImbalance:     bookImbalanceScore,
	KindDepthPressure:     depthPressureScore,
	KindSpreadQuality:     spreadQualityScore,
	KindPriceMomentum:     priceMomentumScore,
	KindFundingBias:       fundingBiasScore,
	KindSentimentIndex:    sentimentIndexScore,
	KindRangePosition:     rangePositionScore,
	KindSwingStructure:    swingStructureScore,
	KindBollingerPosition: bollingerPositionScore,
}

// Compute returns kind's score for data in [0, 100]. Any internal failure
// yields the neutral score.
func Compute(kind Kind, data *models.MarketData) float64 {
	v, err := Evaluate(kind, data)
	if err != nil {
		return models.NeutralScore
	}
	return v
}

// Evaluate is Compute with the failure reason kept. The returned value is
// always finite and clipped when err is nil.
func Evaluate(kind Kind, data *models.MarketData) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = 0, fmt.Errorf("indicator %s panic: %v", kind, r)
		}
	}()

	fn, ok := computers[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	if data == nil {
		return 0, ErrInsufficientData
	}
	v, err = fn(data)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("indicator %s: non-finite result", kind)
	}
	return Clip(v, 0, 100), nil
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// fromSigned maps a signal in [-1, 1] onto [0, 100].
func fromSigned(x float64) float64 {
	return 50 + 50*Clip(x, -1, 1)
}

// squash maps an unbounded signal onto [0, 100] with scale as the 76/24 point.
func squash(x, scale float64) float64 {
	if scale <= 0 {
		return models.NeutralScore
	}
	return 50 + 50*math.Tanh(x/scale)
}

func paramInt(kind Kind, name string) int {
	switch v := defaultParams[kind][name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func paramFloat(kind Kind, name string) float64 {
	switch v := defaultParams[kind][name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
