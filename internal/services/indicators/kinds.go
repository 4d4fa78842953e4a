package indicators

import "Confluence/internal/domain/models"

// Kind names a single indicator.
type Kind string

const (
	KindRSI        Kind = "rsi"
	KindMACD       Kind = "macd"
	KindEMATrend   Kind = "ema_trend"
	KindStochastic Kind = "stochastic"

	KindVolumeRatio   Kind = "volume_ratio"
	KindOBVTrend      Kind = "obv_trend"
	KindCMF           Kind = "cmf"
	KindVWAPDeviation Kind = "vwap_deviation"

	KindTradeDelta     Kind = "trade_delta"
	KindLargeTradeBias Kind = "large_trade_bias"

	KindBookImbalance Kind = "book_imbalance"
	KindDepthPressure Kind = "depth_pressure"
	KindSpreadQuality Kind = "spread_quality"

	KindPriceMomentum  Kind = "price_momentum_24h"
	KindFundingBias    Kind = "funding_bias"
	KindSentimentIndex Kind = "sentiment_index"

	KindRangePosition     Kind = "range_position"
	KindSwingStructure    Kind = "swing_structure"
	KindBollingerPosition Kind = "bollinger_position"
)

var componentKinds = map[models.Component][]Kind{
	models.ComponentTechnical:      {KindRSI, KindMACD, KindEMATrend, KindStochastic},
	models.ComponentVolume:         {KindVolumeRatio, KindOBVTrend, KindCMF, KindVWAPDeviation},
	models.ComponentOrderflow:      {KindTradeDelta, KindLargeTradeBias},
	models.ComponentOrderbook:      {KindBookImbalance, KindDepthPressure, KindSpreadQuality},
	models.ComponentSentiment:      {KindPriceMomentum, KindFundingBias, KindSentimentIndex},
	models.ComponentPriceStructure: {KindRangePosition, KindSwingStructure, KindBollingerPosition},
}

// KindsFor returns the indicators that make up a component.
func KindsFor(c models.Component) []Kind {
	kinds := componentKinds[c]
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Params are the fixed parameters of each indicator. They are part of the
// cache key, so changing one invalidates previously cached values.
var defaultParams = map[Kind]map[string]any{
	KindRSI:               {"period": 14},
	KindMACD:              {"fast": 12, "slow": 26, "signal": 9},
	KindEMATrend:          {"fast": 9, "mid": 21, "slow": 50},
	KindStochastic:        {"k": 14, "d": 3},
	KindVolumeRatio:       {"period": 20},
	KindOBVTrend:          {"period": 20},
	KindCMF:               {"period": 20},
	KindVWAPDeviation:     {"period": 20, "scale": 0.01},
	KindTradeDelta:        {"min_trades": 10},
	KindLargeTradeBias:    {"percentile": 0.9, "min_trades": 20},
	KindBookImbalance:     {"levels": 10},
	KindDepthPressure:     {"band": 0.01},
	KindSpreadQuality:     {"half_life_bps": 10},
	KindPriceMomentum:     {"window": "24h", "scale": 5.0},
	KindFundingBias:       {"scale": 0.0005},
	KindSentimentIndex:    {},
	KindRangePosition:     {"period": 50},
	KindSwingStructure:    {"period": 40, "segments": 4},
	KindBollingerPosition: {"period": 20, "k": 2.0},
}

// Params returns a copy of kind's parameter set.
func Params(kind Kind) map[string]any {
	src := defaultParams[kind]
	out := make(map[string]any, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
