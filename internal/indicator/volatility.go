package indicator

import "math"

// Volatility indicators.

func computeATR(w Window, p Params) map[string][]float64 {
	return map[string][]float64{
		"atr": rma(trueRange(w.High, w.Low, w.Close), p.period("period")),
	}
}

func computeBollinger(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	k := p.value("std_dev")
	mid := sma(w.Close, n)
	sd := rollStd(w.Close, n)
	high := addSeries(mid, scaleSeries(sd, k))
	low := subSeries(mid, scaleSeries(sd, k))

	width := nans(w.Len())
	pctB := nans(w.Len())
	for i := range width {
		if !isValid(mid[i]) {
			continue
		}
		if mid[i] != 0 {
			width[i] = 100 * (high[i] - low[i]) / mid[i]
		}
		if high[i] != low[i] {
			pctB[i] = (w.Close[i] - low[i]) / (high[i] - low[i])
		}
	}
	return map[string][]float64{
		"bb_high":  high,
		"bb_mid":   mid,
		"bb_low":   low,
		"bb_width": width,
		"bb_pct_b": pctB,
	}
}

func computeKeltner(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	atrN := p.period("atr_period")
	mult := p.value("multiplier")
	mid := ema(typicalPrice(w), n)
	atr := rma(trueRange(w.High, w.Low, w.Close), atrN)
	band := scaleSeries(atr, mult)
	high := addSeries(mid, band)
	low := subSeries(mid, band)

	width := nans(w.Len())
	pctB := nans(w.Len())
	for i := range width {
		if !isValid(mid[i]) || !isValid(high[i]) {
			continue
		}
		if mid[i] != 0 {
			width[i] = 100 * (high[i] - low[i]) / mid[i]
		}
		if high[i] != low[i] {
			pctB[i] = (w.Close[i] - low[i]) / (high[i] - low[i])
		}
	}
	return map[string][]float64{
		"kc_high":  high,
		"kc_mid":   mid,
		"kc_low":   low,
		"kc_width": width,
		"kc_pct_b": pctB,
	}
}

func computeDonchian(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	high := rollMax(w.High, n)
	low := rollMin(w.Low, n)
	mid := scaleSeries(addSeries(high, low), 0.5)

	width := nans(w.Len())
	pctB := nans(w.Len())
	for i := range width {
		if !isValid(mid[i]) {
			continue
		}
		if mid[i] != 0 {
			width[i] = 100 * (high[i] - low[i]) / mid[i]
		}
		if high[i] != low[i] {
			pctB[i] = (w.Close[i] - low[i]) / (high[i] - low[i])
		}
	}
	return map[string][]float64{
		"dc_high":  high,
		"dc_mid":   mid,
		"dc_low":   low,
		"dc_width": width,
		"dc_pct_b": pctB,
	}
}

func computeUlcer(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	peak := rollMax(w.Close, n)
	dd := nans(w.Len())
	for i := range dd {
		if isValid(peak[i]) && peak[i] != 0 {
			pct := 100 * (w.Close[i] - peak[i]) / peak[i]
			dd[i] = pct * pct
		}
	}
	ui := rollApply(dd, n, func(win []float64) float64 {
		var s float64
		for _, x := range win {
			s += x
		}
		return math.Sqrt(s / float64(len(win)))
	})
	return map[string][]float64{"ui": ui}
}
