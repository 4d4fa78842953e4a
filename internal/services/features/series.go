package features

import "math"

// SMA returns the simple mean of the last n values.
func SMA(xs []float64, n int) (float64, bool) {
	if n <= 0 || len(xs) < n {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs[len(xs)-n:] {
		sum += x
	}
	return sum / float64(n), true
}

// EMASeries returns the exponential moving average for every index from
// n-1 onward, seeded with the SMA of the first n values.
func EMASeries(xs []float64, n int) []float64 {
	if n <= 0 || len(xs) < n {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(xs)-n+1)
	seed := 0.0
	for _, x := range xs[:n] {
		seed += x
	}
	ema := seed / float64(n)
	out = append(out, ema)
	for _, x := range xs[n:] {
		ema = x*k + ema*(1-k)
		out = append(out, ema)
	}
	return out
}

// EMA returns the latest EMA value.
func EMA(xs []float64, n int) (float64, bool) {
	s := EMASeries(xs, n)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// StdDev is the population standard deviation of the last n values.
func StdDev(xs []float64, n int) (float64, bool) {
	mean, ok := SMA(xs, n)
	if !ok {
		return 0, false
	}
	v := 0.0
	for _, x := range xs[len(xs)-n:] {
		d := x - mean
		v += d * d
	}
	return math.Sqrt(v / float64(n)), true
}

// RSI is Wilder's relative strength index over period.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACD returns the latest MACD line, signal line and histogram.
func MACD(closes []float64, fast, slow, signal int) (macd, sig, hist float64, ok bool) {
	if fast >= slow || len(closes) < slow+signal {
		return 0, 0, 0, false
	}
	fastS := EMASeries(closes, fast)
	slowS := EMASeries(closes, slow)
	// align: slowS[i] corresponds to fastS[i+slow-fast]
	line := make([]float64, len(slowS))
	for i := range slowS {
		line[i] = fastS[i+slow-fast] - slowS[i]
	}
	sigS := EMASeries(line, signal)
	if len(sigS) == 0 {
		return 0, 0, 0, false
	}
	macd = line[len(line)-1]
	sig = sigS[len(sigS)-1]
	return macd, sig, macd - sig, true
}

// Slope is the least-squares slope of the last n values per step.
func Slope(xs []float64, n int) (float64, bool) {
	if n < 2 || len(xs) < n {
		return 0, false
	}
	ys := xs[len(xs)-n:]
	var sx, sy, sxy, sxx float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	fn := float64(n)
	den := fn*sxx - sx*sx
	if den == 0 {
		return 0, false
	}
	return (fn*sxy - sx*sy) / den, true
}

// Percentile returns the p-th percentile (0..1) of xs by nearest rank.
// xs must be sorted ascending.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
