package indicator

import (
	"time"

	"candleflow/internal/model"
)

// Window is a columnar view of a candle series, oldest first. All series
// share one length; computations are pure functions of a Window and their
// parameters.
type Window struct {
	TS     []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64
}

// FromCandles builds a Window from a time-ordered candle slice.
func FromCandles(candles []model.Candle) Window {
	n := len(candles)
	w := Window{
		TS:     make([]time.Time, n),
		Open:   make([]float64, n),
		High:   make([]float64, n),
		Low:    make([]float64, n),
		Close:  make([]float64, n),
		Volume: make([]float64, n),
	}
	for i, c := range candles {
		w.TS[i] = c.BucketStart
		w.Open[i] = c.Open
		w.High[i] = c.High
		w.Low[i] = c.Low
		w.Close[i] = c.Close
		w.Volume[i] = c.Volume
	}
	return w
}

// Len returns the number of bars in the window.
func (w Window) Len() int { return len(w.Close) }
