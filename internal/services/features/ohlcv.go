package features

import "Confluence/internal/domain/models"

// Stochastic returns %K over kPeriod and %D as the SMA of the last dPeriod %K values.
func Stochastic(candles []models.Candle, kPeriod, dPeriod int) (k, d float64, ok bool) {
	if kPeriod <= 0 || dPeriod <= 0 || len(candles) < kPeriod+dPeriod-1 {
		return 0, 0, false
	}
	ks := make([]float64, 0, dPeriod)
	for end := len(candles) - dPeriod + 1; end <= len(candles); end++ {
		window := candles[end-kPeriod : end]
		hi, lo := window[0].High, window[0].Low
		for _, c := range window[1:] {
			if c.High > hi {
				hi = c.High
			}
			if c.Low < lo {
				lo = c.Low
			}
		}
		if hi == lo {
			ks = append(ks, 50)
			continue
		}
		ks = append(ks, (window[len(window)-1].Close-lo)/(hi-lo)*100)
	}
	d, _ = SMA(ks, dPeriod)
	return ks[len(ks)-1], d, true
}

// OBV returns the on-balance volume series.
func OBV(candles []models.Candle) []float64 {
	if len(candles) == 0 {
		return nil
	}
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Volume
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Volume
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// CMF is the Chaikin money flow over the last n bars, in [-1, 1].
func CMF(candles []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(candles) < n {
		return 0, false
	}
	var mfv, vol float64
	for _, c := range candles[len(candles)-n:] {
		rng := c.High - c.Low
		vol += c.Volume
		if rng == 0 {
			continue
		}
		mfm := ((c.Close - c.Low) - (c.High - c.Close)) / rng
		mfv += mfm * c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return mfv / vol, true
}

// VWAP is the volume weighted typical price over the last n bars.
func VWAP(candles []models.Candle, n int) (float64, bool) {
	if n <= 0 || len(candles) < n {
		return 0, false
	}
	var pv, vol float64
	for _, c := range candles[len(candles)-n:] {
		tp := (c.High + c.Low + c.Close) / 3
		pv += tp * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}

// Bollinger returns the middle, upper and lower bands over n bars at k deviations.
func Bollinger(closes []float64, n int, k float64) (mid, upper, lower float64, ok bool) {
	mid, ok = SMA(closes, n)
	if !ok {
		return 0, 0, 0, false
	}
	sd, _ := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd, true
}

// HighLow returns the extreme high and low of the last n bars.
func HighLow(candles []models.Candle, n int) (hi, lo float64, ok bool) {
	if n <= 0 || len(candles) < n {
		return 0, 0, false
	}
	window := candles[len(candles)-n:]
	hi, lo = window[0].High, window[0].Low
	for _, c := range window[1:] {
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	return hi, lo, true
}
