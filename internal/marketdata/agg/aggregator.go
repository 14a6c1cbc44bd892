// Package agg builds OHLCV+VWAP candles from a stream of ticks for one
// (symbol, timeframe) pair. An Aggregator is strictly single-producer:
// exactly one goroutine calls OnTick at a time. Cross-aggregator
// parallelism is handled by the stream manager.
package agg

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"candleflow/internal/model"
	"candleflow/internal/timeframe"
)

// ErrInvalidTick marks ticks with non-positive price or negative size.
// These are rejected by upstream validators; if one reaches the aggregator
// it is counted and dropped without touching state.
var ErrInvalidTick = errors.New("invalid tick")

// Options tunes one aggregator.
type Options struct {
	// Tolerance widens the late-tick window: ticks whose bucket is older
	// than lastCompleted-Tolerance are dropped outright. Default 0 (strict).
	Tolerance time.Duration

	// FillGaps emits synthetic flat candles (OHLC = last close, volume 0)
	// for whole buckets skipped between the closed bucket and the new one.
	// Off by default: a gap in the feed stays a gap in the series.
	FillGaps bool
}

// Events is the outcome of one tick: zero or more completed candles
// (more than one only with FillGaps), then an updated partial.
type Events struct {
	Completed []model.Candle
	Partial   *model.Candle
}

// Aggregator holds the open candle state for one (symbol, timeframe).
type Aggregator struct {
	symbol string
	tf     string
	opts   Options

	open          *model.Candle
	sumPV, sumV   float64 // running VWAP accumulators for the open bucket
	lastCompleted time.Time
	hasCompleted  bool

	lateDropped    atomic.Uint64
	invalidDropped atomic.Uint64

	// Metrics hook (optional, set externally).
	OnLateDropped func()
}

// New creates an aggregator for one (symbol, timeframe).
func New(symbol, tf string, opts Options) *Aggregator {
	return &Aggregator{symbol: symbol, tf: tf, opts: opts}
}

// Symbol returns the aggregator's symbol.
func (a *Aggregator) Symbol() string { return a.symbol }

// Timeframe returns the aggregator's canonical timeframe.
func (a *Aggregator) Timeframe() string { return a.tf }

// LateDropped returns the count of ticks dropped by the out-of-order rule.
func (a *Aggregator) LateDropped() uint64 { return a.lateDropped.Load() }

// InvalidDropped returns the count of ticks rejected as invalid.
func (a *Aggregator) InvalidDropped() uint64 { return a.invalidDropped.Load() }

// OnTick incorporates one tick. The returned candles are copies owned by
// the caller; the aggregator never mutates them after return.
func (a *Aggregator) OnTick(t model.Tick) (Events, error) {
	if t.Price <= 0 || t.Size < 0 {
		a.invalidDropped.Add(1)
		return Events{}, fmt.Errorf("%w: price=%v size=%v", ErrInvalidTick, t.Price, t.Size)
	}

	b := timeframe.BucketStart(t.TS, a.tf)

	if a.open == nil {
		if a.hasCompleted && b.Before(a.lastCompleted.Add(-a.opts.Tolerance)) {
			a.dropLate()
			return Events{}, nil
		}
		a.startBucket(b, t)
		return Events{Partial: a.snapshot()}, nil
	}

	switch {
	case b.Equal(a.open.BucketStart):
		a.applyTick(t)
		return Events{Partial: a.snapshot()}, nil

	case b.After(a.open.BucketStart):
		ev := Events{}
		closed := a.closeBucket()
		ev.Completed = append(ev.Completed, closed)
		if a.opts.FillGaps {
			ev.Completed = append(ev.Completed, a.fillGap(closed, b)...)
		}
		a.startBucket(b, t)
		ev.Partial = a.snapshot()
		return ev, nil

	default:
		// b < open bucket: late tick for an already-closed bucket. Only a
		// tick whose bucket equals the open one may extend it, so drop.
		a.dropLate()
		return Events{}, nil
	}
}

// Flush returns a final snapshot of the open candle (Complete=false) and
// clears it. Used by the shutdown drain; returns nil if no bucket is open.
func (a *Aggregator) Flush() *model.Candle {
	if a.open == nil {
		return nil
	}
	snap := a.snapshot()
	a.open = nil
	a.sumPV, a.sumV = 0, 0
	return snap
}

func (a *Aggregator) startBucket(b time.Time, t model.Tick) {
	a.open = &model.Candle{
		Symbol:      a.symbol,
		Timeframe:   a.tf,
		BucketStart: b,
		Open:        t.Price,
		High:        t.Price,
		Low:         t.Price,
		Close:       t.Price,
		Volume:      t.Size,
		VWAP:        t.Price,
		TickCount:   1,
	}
	a.sumPV = t.Price * t.Size
	a.sumV = t.Size
}

func (a *Aggregator) applyTick(t model.Tick) {
	c := a.open
	if t.Price > c.High {
		c.High = t.Price
	}
	if t.Price < c.Low {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.TickCount++
	if t.Size > 0 {
		c.Volume += t.Size
		a.sumPV += t.Price * t.Size
		a.sumV += t.Size
	}
	if a.sumV > 0 {
		c.VWAP = a.sumPV / a.sumV
	} else {
		// Volume-less bucket: VWAP tracks the close by convention.
		c.VWAP = c.Close
	}
}

func (a *Aggregator) closeBucket() model.Candle {
	closed := *a.open
	closed.Complete = true
	a.lastCompleted = closed.BucketStart
	a.hasCompleted = true
	a.open = nil
	a.sumPV, a.sumV = 0, 0
	return closed
}

// fillGap emits flat candles for whole buckets strictly between the closed
// bucket and the new bucket b. Only called with FillGaps on; the default
// path jumps the gap in O(1).
func (a *Aggregator) fillGap(closed model.Candle, b time.Time) []model.Candle {
	var fills []model.Candle
	for cur := timeframe.NextBucket(closed.BucketStart, a.tf); cur.Before(b); cur = timeframe.NextBucket(cur, a.tf) {
		fills = append(fills, model.Candle{
			Symbol:      a.symbol,
			Timeframe:   a.tf,
			BucketStart: cur,
			Open:        closed.Close,
			High:        closed.Close,
			Low:         closed.Close,
			Close:       closed.Close,
			VWAP:        closed.Close,
			Complete:    true,
		})
		a.lastCompleted = cur
	}
	return fills
}

func (a *Aggregator) snapshot() *model.Candle {
	snap := *a.open
	return &snap
}

func (a *Aggregator) dropLate() {
	a.lateDropped.Add(1)
	if a.OnLateDropped != nil {
		a.OnLateDropped()
	}
}
