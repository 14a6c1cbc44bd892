package indicator

import "math"

// Trend indicators.

func computeSMA(w Window, p Params) map[string][]float64 {
	return map[string][]float64{"sma": sma(w.Close, p.period("period"))}
}

func computeEMA(w Window, p Params) map[string][]float64 {
	return map[string][]float64{"ema": ema(w.Close, p.period("period"))}
}

func computeWMA(w Window, p Params) map[string][]float64 {
	return map[string][]float64{"wma": wma(w.Close, p.period("period"))}
}

func computeMACD(w Window, p Params) map[string][]float64 {
	fast := ema(w.Close, p.period("fast_period"))
	slow := ema(w.Close, p.period("slow_period"))
	macd := subSeries(fast, slow)
	signal := ema(macd, p.period("signal_period"))
	return map[string][]float64{
		"macd":        macd,
		"macd_signal": signal,
		"macd_diff":   subSeries(macd, signal),
	}
}

func computeADX(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	size := w.Len()
	plusDM := make([]float64, size)
	minusDM := make([]float64, size)
	for i := 1; i < size; i++ {
		up := w.High[i] - w.High[i-1]
		down := w.Low[i-1] - w.Low[i]
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}
	atr := rma(trueRange(w.High, w.Low, w.Close), n)
	plusDI := scaleSeries(divSeries(rma(plusDM, n), atr), 100)
	minusDI := scaleSeries(divSeries(rma(minusDM, n), atr), 100)

	dx := nans(size)
	for i := range dx {
		if isValid(plusDI[i]) && isValid(minusDI[i]) && plusDI[i]+minusDI[i] != 0 {
			dx[i] = 100 * math.Abs(plusDI[i]-minusDI[i]) / (plusDI[i] + minusDI[i])
		}
	}
	return map[string][]float64{
		"adx":     rma(dx, n),
		"adx_pos": plusDI,
		"adx_neg": minusDI,
	}
}

func computeVortex(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	size := w.Len()
	vmPlus := nans(size)
	vmMinus := nans(size)
	for i := 1; i < size; i++ {
		vmPlus[i] = math.Abs(w.High[i] - w.Low[i-1])
		vmMinus[i] = math.Abs(w.Low[i] - w.High[i-1])
	}
	tr := trueRange(w.High, w.Low, w.Close)
	tr[0] = math.NaN() // align with the lagged vm series
	trSum := rollSum(tr, n)
	return map[string][]float64{
		"vortex_pos": divSeries(rollSum(vmPlus, n), trSum),
		"vortex_neg": divSeries(rollSum(vmMinus, n), trSum),
	}
}

func computeTRIX(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	e3 := ema(ema(ema(w.Close, n), n), n)
	return map[string][]float64{"trix": scaleSeries(pctChange(e3, 1), 100)}
}

func computeMassIndex(w Window, p Params) map[string][]float64 {
	fast := p.period("fast_period")
	slow := p.period("slow_period")
	rng := subSeries(w.High, w.Low)
	e1 := ema(rng, fast)
	e2 := ema(e1, fast)
	return map[string][]float64{"mass_index": rollSum(divSeries(e1, e2), slow)}
}

func computeCCI(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	c := p.value("constant")
	tp := typicalPrice(w)
	mean := sma(tp, n)
	mad := rollApply(tp, n, func(win []float64) float64 {
		var m float64
		for _, x := range win {
			m += x
		}
		m /= float64(len(win))
		var dev float64
		for _, x := range win {
			dev += math.Abs(x - m)
		}
		return dev / float64(len(win))
	})
	out := nans(w.Len())
	for i := range out {
		if isValid(mean[i]) && isValid(mad[i]) && mad[i] != 0 {
			out[i] = (tp[i] - mean[i]) / (c * mad[i])
		}
	}
	return map[string][]float64{"cci": out}
}

func computeDPO(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	shift := n/2 + 1
	mean := sma(w.Close, n)
	out := nans(w.Len())
	for i := shift; i < w.Len(); i++ {
		if isValid(mean[i]) {
			out[i] = w.Close[i-shift] - mean[i]
		}
	}
	return map[string][]float64{"dpo": out}
}

func computeKST(w Window, p Params) map[string][]float64 {
	roc1 := sma(pctChange(w.Close, p.period("roc1")), p.period("sma1"))
	roc2 := sma(pctChange(w.Close, p.period("roc2")), p.period("sma2"))
	roc3 := sma(pctChange(w.Close, p.period("roc3")), p.period("sma3"))
	roc4 := sma(pctChange(w.Close, p.period("roc4")), p.period("sma4"))

	kst := nans(w.Len())
	for i := range kst {
		if isValid(roc1[i]) && isValid(roc2[i]) && isValid(roc3[i]) && isValid(roc4[i]) {
			kst[i] = 100 * (roc1[i] + 2*roc2[i] + 3*roc3[i] + 4*roc4[i])
		}
	}
	return map[string][]float64{
		"kst":        kst,
		"kst_signal": sma(kst, p.period("signal_period")),
	}
}

func computeIchimoku(w Window, p Params) map[string][]float64 {
	mid := func(n int) []float64 {
		return scaleSeries(addSeries(rollMax(w.High, n), rollMin(w.Low, n)), 0.5)
	}
	conv := mid(p.period("conversion_period"))
	base := mid(p.period("base_period"))
	return map[string][]float64{
		"ichimoku_conv": conv,
		"ichimoku_base": base,
		"ichimoku_a":    scaleSeries(addSeries(conv, base), 0.5),
		"ichimoku_b":    mid(p.period("span_b_period")),
	}
}

func computePSAR(w Window, p Params) map[string][]float64 {
	step := p.value("step")
	maxStep := p.value("max_step")
	size := w.Len()
	psar := nans(size)
	up := nans(size)
	down := nans(size)
	if size < 2 {
		return map[string][]float64{"psar": psar, "psar_up": up, "psar_down": down}
	}

	rising := w.Close[1] >= w.Close[0]
	sar := w.Low[0]
	ep := w.High[0]
	if !rising {
		sar = w.High[0]
		ep = w.Low[0]
	}
	af := step

	for i := 1; i < size; i++ {
		sar = sar + af*(ep-sar)
		if rising {
			// SAR never enters the prior two bars' range.
			if sar > w.Low[i-1] {
				sar = w.Low[i-1]
			}
			if i >= 2 && sar > w.Low[i-2] {
				sar = w.Low[i-2]
			}
			if w.Low[i] < sar {
				rising = false
				sar = ep
				ep = w.Low[i]
				af = step
			} else if w.High[i] > ep {
				ep = w.High[i]
				af = math.Min(af+step, maxStep)
			}
		} else {
			if sar < w.High[i-1] {
				sar = w.High[i-1]
			}
			if i >= 2 && sar < w.High[i-2] {
				sar = w.High[i-2]
			}
			if w.High[i] > sar {
				rising = true
				sar = ep
				ep = w.High[i]
				af = step
			} else if w.Low[i] < ep {
				ep = w.Low[i]
				af = math.Min(af+step, maxStep)
			}
		}
		psar[i] = sar
		if rising {
			up[i] = sar
		} else {
			down[i] = sar
		}
	}
	return map[string][]float64{"psar": psar, "psar_up": up, "psar_down": down}
}

func computeSTC(w Window, p Params) map[string][]float64 {
	cycle := p.period("cycle")
	macd := subSeries(ema(w.Close, p.period("fast_period")), ema(w.Close, p.period("slow_period")))

	stochOf := func(v []float64) []float64 {
		lo := rollMin(v, cycle)
		hi := rollMax(v, cycle)
		out := nans(len(v))
		for i := range v {
			if isValid(v[i]) && isValid(lo[i]) && isValid(hi[i]) && hi[i] != lo[i] {
				out[i] = 100 * (v[i] - lo[i]) / (hi[i] - lo[i])
			}
		}
		return out
	}

	d1 := ema(stochOf(macd), p.period("smooth1"))
	return map[string][]float64{"stc": ema(stochOf(d1), p.period("smooth2"))}
}

func computeAroon(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	size := w.Len()
	upOut := nans(size)
	downOut := nans(size)
	for i := n - 1; i < size; i++ {
		maxIdx, minIdx := i-n+1, i-n+1
		for j := i - n + 1; j <= i; j++ {
			if w.High[j] >= w.High[maxIdx] {
				maxIdx = j
			}
			if w.Low[j] <= w.Low[minIdx] {
				minIdx = j
			}
		}
		upOut[i] = 100 * float64(n-(i-maxIdx)) / float64(n)
		downOut[i] = 100 * float64(n-(i-minIdx)) / float64(n)
	}
	return map[string][]float64{
		"aroon_up":        upOut,
		"aroon_down":      downOut,
		"aroon_indicator": subSeries(upOut, downOut),
	}
}
