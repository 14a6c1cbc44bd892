package indicator

import "math"

// Series helpers. Every function is length-preserving: positions without
// enough history hold NaN, the engine-wide "unknown" sentinel. Rolling
// windows are O(n·w); windows are a few hundred bars, so clarity wins
// over incremental bookkeeping here.

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func isValid(x float64) bool { return !math.IsNaN(x) }

// firstValid returns the index of the first non-NaN value, or -1.
func firstValid(v []float64) int {
	for i, x := range v {
		if isValid(x) {
			return i
		}
	}
	return -1
}

// sma is the rolling mean over n values. NaN until n values are available.
func sma(v []float64, n int) []float64 {
	out := nans(len(v))
	if n <= 0 {
		return out
	}
	start := firstValid(v)
	if start < 0 {
		return out
	}
	var sum float64
	for i := start; i < len(v); i++ {
		sum += v[i]
		if i-start >= n {
			sum -= v[i-n]
		}
		if i-start >= n-1 {
			out[i] = sum / float64(n)
		}
	}
	return out
}

// ewm applies exponential smoothing with the given alpha, seeding with the
// mean of the first n valid values (classic SMA seed).
func ewm(v []float64, n int, alpha float64) []float64 {
	out := nans(len(v))
	if n <= 0 {
		return out
	}
	start := firstValid(v)
	if start < 0 || start+n > len(v) {
		return out
	}
	var seed float64
	for i := start; i < start+n; i++ {
		seed += v[i]
	}
	seed /= float64(n)
	out[start+n-1] = seed
	for i := start + n; i < len(v); i++ {
		out[i] = v[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// ema is the standard exponential moving average, alpha = 2/(n+1).
func ema(v []float64, n int) []float64 {
	return ewm(v, n, 2.0/(float64(n)+1))
}

// rma is Wilder's smoothing, alpha = 1/n. Used by RSI, ATR and ADX.
func rma(v []float64, n int) []float64 {
	return ewm(v, n, 1.0/float64(n))
}

// wma is the linearly weighted moving average with weights 1..n.
func wma(v []float64, n int) []float64 {
	out := nans(len(v))
	start := firstValid(v)
	if n <= 0 || start < 0 {
		return out
	}
	denom := float64(n*(n+1)) / 2
	for i := start + n - 1; i < len(v); i++ {
		var sum float64
		for j := 0; j < n; j++ {
			sum += v[i-n+1+j] * float64(j+1)
		}
		out[i] = sum / denom
	}
	return out
}

func rollApply(v []float64, n int, f func(win []float64) float64) []float64 {
	out := nans(len(v))
	start := firstValid(v)
	if n <= 0 || start < 0 {
		return out
	}
	for i := start + n - 1; i < len(v); i++ {
		out[i] = f(v[i-n+1 : i+1])
	}
	return out
}

func rollMax(v []float64, n int) []float64 {
	return rollApply(v, n, func(win []float64) float64 {
		m := win[0]
		for _, x := range win[1:] {
			if x > m {
				m = x
			}
		}
		return m
	})
}

func rollMin(v []float64, n int) []float64 {
	return rollApply(v, n, func(win []float64) float64 {
		m := win[0]
		for _, x := range win[1:] {
			if x < m {
				m = x
			}
		}
		return m
	})
}

func rollSum(v []float64, n int) []float64 {
	return rollApply(v, n, func(win []float64) float64 {
		var s float64
		for _, x := range win {
			s += x
		}
		return s
	})
}

// rollStd is the rolling population standard deviation (ddof = 0).
func rollStd(v []float64, n int) []float64 {
	return rollApply(v, n, func(win []float64) float64 {
		var mean float64
		for _, x := range win {
			mean += x
		}
		mean /= float64(len(win))
		var ss float64
		for _, x := range win {
			d := x - mean
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(win)))
	})
}

// diff is the lag-difference v[i] - v[i-lag].
func diff(v []float64, lag int) []float64 {
	out := nans(len(v))
	for i := lag; i < len(v); i++ {
		if isValid(v[i]) && isValid(v[i-lag]) {
			out[i] = v[i] - v[i-lag]
		}
	}
	return out
}

// pctChange is the fractional lag change v[i]/v[i-lag] - 1.
func pctChange(v []float64, lag int) []float64 {
	out := nans(len(v))
	for i := lag; i < len(v); i++ {
		if isValid(v[i]) && isValid(v[i-lag]) && v[i-lag] != 0 {
			out[i] = v[i]/v[i-lag] - 1
		}
	}
	return out
}

// trueRange is max(h-l, |h-prevClose|, |l-prevClose|); the first bar falls
// back to h-l.
func trueRange(high, low, close []float64) []float64 {
	out := make([]float64, len(close))
	for i := range close {
		hl := high[i] - low[i]
		if i == 0 {
			out[i] = hl
			continue
		}
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		out[i] = math.Max(hl, math.Max(hc, lc))
	}
	return out
}

func addSeries(a, b []float64) []float64 {
	out := nans(len(a))
	for i := range a {
		if isValid(a[i]) && isValid(b[i]) {
			out[i] = a[i] + b[i]
		}
	}
	return out
}

func subSeries(a, b []float64) []float64 {
	out := nans(len(a))
	for i := range a {
		if isValid(a[i]) && isValid(b[i]) {
			out[i] = a[i] - b[i]
		}
	}
	return out
}

func divSeries(a, b []float64) []float64 {
	out := nans(len(a))
	for i := range a {
		if isValid(a[i]) && isValid(b[i]) && b[i] != 0 {
			out[i] = a[i] / b[i]
		}
	}
	return out
}

func scaleSeries(a []float64, k float64) []float64 {
	out := nans(len(a))
	for i := range a {
		if isValid(a[i]) {
			out[i] = a[i] * k
		}
	}
	return out
}

// typicalPrice is (high + low + close) / 3.
func typicalPrice(w Window) []float64 {
	out := make([]float64, w.Len())
	for i := range out {
		out[i] = (w.High[i] + w.Low[i] + w.Close[i]) / 3
	}
	return out
}
