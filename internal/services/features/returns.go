package features

import (
	"math"
	"time"

	"Confluence/internal/domain/models"
)

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility is the sample standard deviation of the last window
// log returns, scaled by sqrt(barsPerPeriod). Pass barsPerPeriod=1 for a
// per-bar sigma.
func RealizedVolatility(logReturns []float64, window int, barsPerPeriod float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	sum := 0.0
	sum2 := 0.0
	for i := len(logReturns) - window; i < len(logReturns); i++ {
		r := logReturns[i]
		sum += r
		sum2 += r * r
	}
	n := float64(window)
	mean := sum / n
	variance := (sum2 - n*mean*mean) / (n - 1)
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance * barsPerPeriod)
}

// BarsPerDay returns how many bars of the given interval fit in 24h.
func BarsPerDay(interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	return int(24 * time.Hour / interval)
}

// AlignFromTo rounds a time range down to bar boundaries.
func AlignFromTo(from, to time.Time, interval time.Duration) (time.Time, time.Time) {
	if interval <= 0 {
		interval = time.Minute
	}
	return from.Truncate(interval), to.Truncate(interval)
}
