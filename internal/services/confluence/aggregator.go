package confluence

import (
	"math"
	"sort"

	"Confluence/internal/domain/models"
	"Confluence/internal/domain/service"
)

// DefaultDecayRate is the k in consensus = exp(-k * variance).
const DefaultDecayRate = 2.0

// Aggregator combines component scores into one score plus quality metrics.
type Aggregator struct {
	decayRate float64
}

var _ service.Aggregator = (*Aggregator)(nil)

type Option func(*Aggregator)

// WithDecayRate overrides the consensus decay rate. Non-positive or
// non-finite values are ignored.
func WithDecayRate(k float64) Option {
	return func(a *Aggregator) {
		if k > 0 && !math.IsInf(k, 0) {
			a.decayRate = k
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{decayRate: DefaultDecayRate}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate never fails: empty or malformed input yields NeutralQuality.
//
// Weights are taken for the components present in scores and normalized to
// sum to 1; a nil or empty weights map means equal weights. Components
// present in scores but missing from a non-empty weights map weigh 0.
func (a *Aggregator) Aggregate(scores map[models.Component]float64, weights map[models.Component]float64) (q models.QualityMetrics) {
	defer func() {
		if recover() != nil {
			q = models.NeutralQuality()
		}
	}()

	if len(scores) == 0 {
		return models.NeutralQuality()
	}

	w, ok := normalizeWeights(scores, weights)
	if !ok {
		return models.NeutralQuality()
	}

	// fixed order keeps the float sums reproducible
	keys := make([]models.Component, 0, len(scores))
	for c := range scores {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	normalized := make([]float64, 0, len(scores))
	raw := 0.0
	for _, c := range keys {
		s := scores[c]
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return models.NeutralQuality()
		}
		n := clip((s-50)/50, -1, 1)
		normalized = append(normalized, n)
		raw += w[c] * n
	}
	raw = clip(raw, -1, 1)

	variance := populationVariance(normalized)
	consensus := math.Exp(-a.decayRate * variance)

	return models.QualityMetrics{
		ScoreRaw:     raw,
		Score:        clip(raw*50+50, 0, 100),
		Consensus:    consensus,
		Confidence:   math.Abs(raw) * consensus,
		Disagreement: variance,
	}
}

func normalizeWeights(scores, weights map[models.Component]float64) (map[models.Component]float64, bool) {
	out := make(map[models.Component]float64, len(scores))
	if len(weights) == 0 {
		eq := 1 / float64(len(scores))
		for c := range scores {
			out[c] = eq
		}
		return out, true
	}

	sum := 0.0
	for c := range scores {
		w := weights[c]
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, false
		}
		out[c] = w
		sum += w
	}
	if sum <= 0 {
		return nil, false
	}
	for c := range out {
		out[c] /= sum
	}
	return out, true
}

func populationVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	v := 0.0
	for _, x := range xs {
		d := x - mean
		v += d * d
	}
	return v / float64(len(xs))
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
