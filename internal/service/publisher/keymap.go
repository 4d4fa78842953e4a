package publisher

import (
	"math"
	"sort"
	"strings"

	"Confluence/internal/domain/models"
)

type slotRule struct {
	slot models.Component
	subs []string
}

// slotRules are evaluated top to bottom after the exact-name check; the
// first rule with a matching substring wins. The slot-naming tokens come
// first so "orderflow_imbalance" stays in orderflow.
var slotRules = []slotRule{
	{models.ComponentPriceStructure, []string{"structure"}},
	{models.ComponentOrderflow, []string{"flow"}},
	{models.ComponentOrderbook, []string{"book"}},
	{models.ComponentPriceStructure, []string{"support", "resistance", "pivot", "pattern", "swing"}},
	{models.ComponentOrderbook, []string{"depth", "imbalance", "spread"}},
	{models.ComponentOrderflow, []string{"cvd", "delta", "trade", "tape"}},
	{models.ComponentVolume, []string{"volume", "obv", "vwap", "cmf", "mfi"}},
	{models.ComponentSentiment, []string{"sentiment", "funding", "fear", "greed", "social", "news"}},
	{models.ComponentTechnical, []string{"technical", "rsi", "ema", "macd", "sma", "momentum", "stoch", "adx", "trend"}},
}

// SlotFor maps a free-form component name to a fixed slot.
func SlotFor(name string) (models.Component, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	for _, c := range models.Components {
		if n == string(c) {
			return c, true
		}
	}
	for _, r := range slotRules {
		for _, sub := range r.subs {
			if strings.Contains(n, sub) {
				return r.slot, true
			}
		}
	}
	return "", false
}

// NormalizeComponents folds arbitrary component names into the six fixed
// slots. An exact slot name beats substring matches; among substring
// matches the lexically first name wins. Missing slots are neutral.
func NormalizeComponents(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(models.Components))
	exact := make(map[models.Component]bool, len(models.Components))

	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v := in[name]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		slot, ok := SlotFor(name)
		if !ok {
			continue
		}
		isExact := strings.ToLower(strings.TrimSpace(name)) == string(slot)
		if _, taken := out[string(slot)]; taken && (exact[slot] || !isExact) {
			continue
		}
		out[string(slot)] = round2(clip(v, 0, 100))
		exact[slot] = exact[slot] || isExact
	}

	for _, c := range models.Components {
		if _, ok := out[string(c)]; !ok {
			out[string(c)] = models.NeutralScore
		}
	}
	return out
}

func clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
