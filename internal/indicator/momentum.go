package indicator

import "math"

// Momentum indicators.

func rsiSeries(v []float64, n int) []float64 {
	d := diff(v, 1)
	gains := nans(len(v))
	losses := nans(len(v))
	for i := range d {
		if !isValid(d[i]) {
			continue
		}
		if d[i] > 0 {
			gains[i], losses[i] = d[i], 0
		} else {
			gains[i], losses[i] = 0, -d[i]
		}
	}
	avgGain := rma(gains, n)
	avgLoss := rma(losses, n)
	out := nans(len(v))
	for i := range out {
		if !isValid(avgGain[i]) || !isValid(avgLoss[i]) {
			continue
		}
		if avgLoss[i] == 0 {
			out[i] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[i] = 100 - 100/(1+rs)
	}
	return out
}

func computeRSI(w Window, p Params) map[string][]float64 {
	return map[string][]float64{"rsi": rsiSeries(w.Close, p.period("period"))}
}

func computeStochRSI(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	rsi := rsiSeries(w.Close, n)
	lo := rollMin(rsi, n)
	hi := rollMax(rsi, n)
	srsi := nans(w.Len())
	for i := range srsi {
		if isValid(rsi[i]) && isValid(lo[i]) && isValid(hi[i]) && hi[i] != lo[i] {
			srsi[i] = (rsi[i] - lo[i]) / (hi[i] - lo[i])
		}
	}
	k := sma(srsi, p.period("smooth_k"))
	return map[string][]float64{
		"stochrsi":   srsi,
		"stochrsi_k": k,
		"stochrsi_d": sma(k, p.period("smooth_d")),
	}
}

func computeTSI(w Window, p Params) map[string][]float64 {
	slow := p.period("slow_period")
	fast := p.period("fast_period")
	m := diff(w.Close, 1)
	absM := nans(len(m))
	for i := range m {
		if isValid(m[i]) {
			absM[i] = math.Abs(m[i])
		}
	}
	num := ema(ema(m, slow), fast)
	den := ema(ema(absM, slow), fast)
	return map[string][]float64{"tsi": scaleSeries(divSeries(num, den), 100)}
}

func computeUO(w Window, p Params) map[string][]float64 {
	s, m, l := p.period("short_period"), p.period("medium_period"), p.period("long_period")
	size := w.Len()
	bp := nans(size)
	tr := nans(size)
	for i := 1; i < size; i++ {
		lowMin := math.Min(w.Low[i], w.Close[i-1])
		highMax := math.Max(w.High[i], w.Close[i-1])
		bp[i] = w.Close[i] - lowMin
		tr[i] = highMax - lowMin
	}
	avg := func(n int) []float64 {
		return divSeries(rollSum(bp, n), rollSum(tr, n))
	}
	aS, aM, aL := avg(s), avg(m), avg(l)
	out := nans(size)
	for i := range out {
		if isValid(aS[i]) && isValid(aM[i]) && isValid(aL[i]) {
			out[i] = 100 * (4*aS[i] + 2*aM[i] + aL[i]) / 7
		}
	}
	return map[string][]float64{"uo": out}
}

func computeStoch(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	lo := rollMin(w.Low, n)
	hi := rollMax(w.High, n)
	k := nans(w.Len())
	for i := range k {
		if isValid(lo[i]) && isValid(hi[i]) && hi[i] != lo[i] {
			k[i] = 100 * (w.Close[i] - lo[i]) / (hi[i] - lo[i])
		}
	}
	return map[string][]float64{
		"stoch_k": k,
		"stoch_d": sma(k, p.period("smooth_period")),
	}
}

func computeWilliamsR(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	lo := rollMin(w.Low, n)
	hi := rollMax(w.High, n)
	out := nans(w.Len())
	for i := range out {
		if isValid(lo[i]) && isValid(hi[i]) && hi[i] != lo[i] {
			out[i] = -100 * (hi[i] - w.Close[i]) / (hi[i] - lo[i])
		}
	}
	return map[string][]float64{"wr": out}
}

func computeAO(w Window, p Params) map[string][]float64 {
	mid := scaleSeries(addSeries(w.High, w.Low), 0.5)
	return map[string][]float64{
		"ao": subSeries(sma(mid, p.period("fast_period")), sma(mid, p.period("slow_period"))),
	}
}

func computeKAMA(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	fast := p.period("fast_period")
	slow := p.period("slow_period")
	size := w.Len()
	out := nans(size)
	if size <= n {
		return map[string][]float64{"kama": out}
	}
	fastSC := 2.0 / (float64(fast) + 1)
	slowSC := 2.0 / (float64(slow) + 1)

	out[n-1] = w.Close[n-1]
	for i := n; i < size; i++ {
		change := math.Abs(w.Close[i] - w.Close[i-n])
		var vol float64
		for j := i - n + 1; j <= i; j++ {
			vol += math.Abs(w.Close[j] - w.Close[j-1])
		}
		var er float64
		if vol != 0 {
			er = change / vol
		}
		sc := er*(fastSC-slowSC) + slowSC
		sc *= sc
		out[i] = out[i-1] + sc*(w.Close[i]-out[i-1])
	}
	return map[string][]float64{"kama": out}
}

func computeROC(w Window, p Params) map[string][]float64 {
	return map[string][]float64{
		"roc": scaleSeries(pctChange(w.Close, p.period("period")), 100),
	}
}

func computePPO(w Window, p Params) map[string][]float64 {
	fast := ema(w.Close, p.period("fast_period"))
	slow := ema(w.Close, p.period("slow_period"))
	ppo := scaleSeries(divSeries(subSeries(fast, slow), slow), 100)
	signal := ema(ppo, p.period("signal_period"))
	return map[string][]float64{
		"ppo":        ppo,
		"ppo_signal": signal,
		"ppo_hist":   subSeries(ppo, signal),
	}
}

func computePVO(w Window, p Params) map[string][]float64 {
	fast := ema(w.Volume, p.period("fast_period"))
	slow := ema(w.Volume, p.period("slow_period"))
	pvo := scaleSeries(divSeries(subSeries(fast, slow), slow), 100)
	signal := ema(pvo, p.period("signal_period"))
	return map[string][]float64{
		"pvo":        pvo,
		"pvo_signal": signal,
		"pvo_hist":   subSeries(pvo, signal),
	}
}
