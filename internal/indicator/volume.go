package indicator

// Volume indicators.

func computeMFI(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	tp := typicalPrice(w)
	size := w.Len()
	posFlow := nans(size)
	negFlow := nans(size)
	for i := 1; i < size; i++ {
		raw := tp[i] * w.Volume[i]
		switch {
		case tp[i] > tp[i-1]:
			posFlow[i], negFlow[i] = raw, 0
		case tp[i] < tp[i-1]:
			posFlow[i], negFlow[i] = 0, raw
		default:
			posFlow[i], negFlow[i] = 0, 0
		}
	}
	posSum := rollSum(posFlow, n)
	negSum := rollSum(negFlow, n)
	out := nans(size)
	for i := range out {
		if !isValid(posSum[i]) || !isValid(negSum[i]) {
			continue
		}
		if negSum[i] == 0 {
			out[i] = 100
			continue
		}
		mr := posSum[i] / negSum[i]
		out[i] = 100 - 100/(1+mr)
	}
	return map[string][]float64{"mfi": out}
}

func computeADI(w Window, _ Params) map[string][]float64 {
	size := w.Len()
	out := make([]float64, size)
	var acc float64
	for i := 0; i < size; i++ {
		rng := w.High[i] - w.Low[i]
		if rng != 0 {
			clv := ((w.Close[i] - w.Low[i]) - (w.High[i] - w.Close[i])) / rng
			acc += clv * w.Volume[i]
		}
		out[i] = acc
	}
	return map[string][]float64{"adi": out}
}

func computeOBV(w Window, _ Params) map[string][]float64 {
	size := w.Len()
	out := make([]float64, size)
	if size == 0 {
		return map[string][]float64{"obv": out}
	}
	out[0] = w.Volume[0]
	for i := 1; i < size; i++ {
		switch {
		case w.Close[i] > w.Close[i-1]:
			out[i] = out[i-1] + w.Volume[i]
		case w.Close[i] < w.Close[i-1]:
			out[i] = out[i-1] - w.Volume[i]
		default:
			out[i] = out[i-1]
		}
	}
	return map[string][]float64{"obv": out}
}

func computeCMF(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	size := w.Len()
	mfv := make([]float64, size)
	for i := 0; i < size; i++ {
		rng := w.High[i] - w.Low[i]
		if rng != 0 {
			clv := ((w.Close[i] - w.Low[i]) - (w.High[i] - w.Close[i])) / rng
			mfv[i] = clv * w.Volume[i]
		}
	}
	return map[string][]float64{
		"cmf": divSeries(rollSum(mfv, n), rollSum(w.Volume, n)),
	}
}

func computeForceIndex(w Window, p Params) map[string][]float64 {
	size := w.Len()
	fi := nans(size)
	for i := 1; i < size; i++ {
		fi[i] = (w.Close[i] - w.Close[i-1]) * w.Volume[i]
	}
	return map[string][]float64{"fi": ema(fi, p.period("period"))}
}

func computeEoM(w Window, p Params) map[string][]float64 {
	size := w.Len()
	eom := nans(size)
	for i := 1; i < size; i++ {
		rng := w.High[i] - w.Low[i]
		if w.Volume[i] != 0 && rng != 0 {
			mid := (w.High[i] + w.Low[i]) / 2
			prevMid := (w.High[i-1] + w.Low[i-1]) / 2
			// Scaled so typical equity values land in a readable range.
			eom[i] = (mid - prevMid) * 1e8 / (w.Volume[i] / rng)
		}
	}
	return map[string][]float64{
		"eom":     eom,
		"eom_sma": sma(eom, p.period("period")),
	}
}

func computeVPT(w Window, _ Params) map[string][]float64 {
	size := w.Len()
	out := make([]float64, size)
	var acc float64
	for i := 1; i < size; i++ {
		if w.Close[i-1] != 0 {
			acc += w.Volume[i] * (w.Close[i] - w.Close[i-1]) / w.Close[i-1]
		}
		out[i] = acc
	}
	return map[string][]float64{"vpt": out}
}

func computeNVI(w Window, _ Params) map[string][]float64 {
	size := w.Len()
	out := make([]float64, size)
	if size == 0 {
		return map[string][]float64{"nvi": out}
	}
	out[0] = 1000
	for i := 1; i < size; i++ {
		out[i] = out[i-1]
		if w.Volume[i] < w.Volume[i-1] && w.Close[i-1] != 0 {
			out[i] = out[i-1] * (1 + (w.Close[i]-w.Close[i-1])/w.Close[i-1])
		}
	}
	return map[string][]float64{"nvi": out}
}

func computeVWAPRolling(w Window, p Params) map[string][]float64 {
	n := p.period("period")
	tp := typicalPrice(w)
	pv := make([]float64, w.Len())
	for i := range pv {
		pv[i] = tp[i] * w.Volume[i]
	}
	// Zero traded volume over the whole window stays NaN.
	return map[string][]float64{
		"vwap": divSeries(rollSum(pv, n), rollSum(w.Volume, n)),
	}
}
