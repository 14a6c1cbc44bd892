package indicator

import "math"

// Return series.

func computeDR(w Window, _ Params) map[string][]float64 {
	return map[string][]float64{"dr": scaleSeries(pctChange(w.Close, 1), 100)}
}

func computeDLR(w Window, _ Params) map[string][]float64 {
	out := nans(w.Len())
	for i := 1; i < w.Len(); i++ {
		if w.Close[i] > 0 && w.Close[i-1] > 0 {
			out[i] = 100 * math.Log(w.Close[i]/w.Close[i-1])
		}
	}
	return map[string][]float64{"dlr": out}
}

func computeCR(w Window, _ Params) map[string][]float64 {
	out := nans(w.Len())
	if w.Len() == 0 || w.Close[0] == 0 {
		return map[string][]float64{"cr": out}
	}
	for i := range out {
		out[i] = 100 * (w.Close[i]/w.Close[0] - 1)
	}
	return map[string][]float64{"cr": out}
}
