package publisher

import (
	"fmt"
	"strings"

	"Confluence/internal/domain/models"
)

const (
	BullishThreshold = 70.0
	BearishThreshold = 30.0
)

// SentimentFor labels a 0..100 score.
func SentimentFor(score float64) string {
	switch {
	case score >= BullishThreshold:
		return models.SentimentBullish
	case score <= BearishThreshold:
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}

var slotTitles = map[models.Component]string{
	models.ComponentTechnical:      "Technical",
	models.ComponentVolume:         "Volume",
	models.ComponentOrderflow:      "Orderflow",
	models.ComponentSentiment:      "Sentiment",
	models.ComponentOrderbook:      "Orderbook",
	models.ComponentPriceStructure: "Price structure",
}

// interpretations prefers what the analysis already carries and only
// synthesizes text when there is none.
func interpretations(result *models.AnalysisResult, score float64, components map[string]float64) map[string]string {
	if len(result.Interpretations) > 0 {
		out := make(map[string]string, len(result.Interpretations))
		for k, v := range result.Interpretations {
			out[k] = v
		}
		return out
	}

	if len(result.MarketInterpretations) > 0 {
		out := make(map[string]string, len(result.MarketInterpretations))
		for _, mi := range result.MarketInterpretations {
			key := mi.Component
			if key == "" {
				key = "overall"
			}
			if prev, ok := out[key]; ok {
				out[key] = prev + " " + mi.Text
				continue
			}
			out[key] = mi.Text
		}
		return out
	}

	return synthesize(score, components)
}

func synthesize(score float64, components map[string]float64) map[string]string {
	out := make(map[string]string, len(components)+1)
	sentiment := SentimentFor(score)
	out["overall"] = fmt.Sprintf("%s confluence at %.1f/100: %s",
		sentiment[:1]+strings.ToLower(sentiment[1:]), score, overallHint(sentiment))

	for _, c := range models.Components {
		v := components[string(c)]
		out[string(c)] = fmt.Sprintf("%s is %s (%.1f)", slotTitles[c], lean(v), v)
	}
	return out
}

func overallHint(sentiment string) string {
	switch sentiment {
	case models.SentimentBullish:
		return "components lean to the upside"
	case models.SentimentBearish:
		return "components lean to the downside"
	default:
		return "no clear directional edge"
	}
}

func lean(v float64) string {
	switch {
	case v >= BullishThreshold:
		return "bullish"
	case v <= BearishThreshold:
		return "bearish"
	default:
		return "neutral"
	}
}
