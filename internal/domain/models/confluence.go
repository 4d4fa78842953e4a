package models

import "time"

// Component is one of the six signal categories that feed the confluence score.
type Component string

const (
	ComponentTechnical      Component = "technical"
	ComponentVolume         Component = "volume"
	ComponentOrderflow      Component = "orderflow"
	ComponentSentiment      Component = "sentiment"
	ComponentOrderbook      Component = "orderbook"
	ComponentPriceStructure Component = "price_structure"
)

// Components lists the fixed breakdown slots in publish order.
var Components = []Component{
	ComponentTechnical,
	ComponentVolume,
	ComponentOrderflow,
	ComponentSentiment,
	ComponentOrderbook,
	ComponentPriceStructure,
}

// NeutralScore is the default for any score that could not be computed.
const NeutralScore = 50.0

// QualityMetrics is the immutable output of one aggregation.
type QualityMetrics struct {
	ScoreRaw     float64 `json:"score_raw"`
	Score        float64 `json:"score"`
	Consensus    float64 `json:"consensus"`
	Confidence   float64 `json:"confidence"`
	Disagreement float64 `json:"disagreement"`
}

// NeutralQuality is returned for empty or malformed input.
func NeutralQuality() QualityMetrics {
	return QualityMetrics{Score: NeutralScore}
}

// HighQuality reports whether a downstream filter should keep this signal.
func (q QualityMetrics) HighQuality() bool {
	return q.Confidence > 0.5 && q.Disagreement < 0.3
}

type Interpretation struct {
	Component string `json:"component"`
	Text      string `json:"interpretation"`
}

// AnalysisResult is what one analysis run hands to the publisher.
// Components may carry arbitrary names; the publisher maps them to slots.
type AnalysisResult struct {
	Symbol                string                        `json:"symbol"`
	ConfluenceScore       float64                       `json:"confluence_score"`
	Reliability           float64                       `json:"reliability"`
	Components            map[string]float64            `json:"components"`
	SubComponents         map[string]map[string]float64 `json:"sub_components,omitempty"`
	Interpretations       map[string]string             `json:"interpretations,omitempty"`
	MarketInterpretations []Interpretation              `json:"market_interpretations,omitempty"`
	Quality               QualityMetrics                `json:"quality"`
	Timestamp             time.Time                     `json:"timestamp"`
}

// Sentiment labels used in published breakdowns.
const (
	SentimentBullish = "BULLISH"
	SentimentBearish = "BEARISH"
	SentimentNeutral = "NEUTRAL"
)

// Breakdown is the dashboard-facing artifact stored at confluence:breakdown:{symbol}.
type Breakdown struct {
	Symbol          string                        `json:"symbol"`
	OverallScore    float64                       `json:"overall_score"`
	Sentiment       string                        `json:"sentiment"`
	Reliability     float64                       `json:"reliability"`
	Components      map[string]float64            `json:"components"`
	SubComponents   map[string]map[string]float64 `json:"sub_components"`
	Interpretations map[string]string             `json:"interpretations"`
	Quality         *QualityMetrics               `json:"quality,omitempty"`
	Timestamp       int64                         `json:"timestamp"`
	CachedAt        string                        `json:"cached_at"`
	HasBreakdown    bool                          `json:"has_breakdown"`
	RealConfluence  bool                          `json:"real_confluence"`
}

// ScoreSummary is stored at confluence:score:{symbol}.
type ScoreSummary struct {
	Score     float64 `json:"score"`
	Sentiment string  `json:"sentiment"`
	Timestamp int64   `json:"timestamp"`
}

// BreakdownEvent is emitted on the event bus after each publish.
type BreakdownEvent struct {
	ID         string    `json:"id"`
	CycleID    string    `json:"cycle_id,omitempty"`
	Symbol     string    `json:"symbol"`
	Breakdown  Breakdown `json:"breakdown"`
	ProducedAt time.Time `json:"produced_at"`
}

// ScoreRecord is one row of score history.
type ScoreRecord struct {
	Symbol       string    `ch:"symbol" json:"symbol"`
	Timestamp    time.Time `ch:"ts" json:"ts"`
	CycleID      string    `ch:"cycle_id" json:"cycle_id"`
	Score        float64   `ch:"score" json:"score"`
	ScoreRaw     float64   `ch:"score_raw" json:"score_raw"`
	Consensus    float64   `ch:"consensus" json:"consensus"`
	Confidence   float64   `ch:"confidence" json:"confidence"`
	Disagreement float64   `ch:"disagreement" json:"disagreement"`
	Reliability  float64   `ch:"reliability" json:"reliability"`
	Sentiment    string    `ch:"sentiment" json:"sentiment"`
}
