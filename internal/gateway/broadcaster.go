package gateway

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"candleflow/internal/indicator"
	"candleflow/internal/marketdata/stream"
	"candleflow/internal/model"
)

// Broadcaster consumes the candle event stream, keeps a rolling window
// per (symbol, timeframe) and fans formatted messages out to interested
// sessions. Indicator values are computed synchronously here, once per
// event, over the updated window.
type Broadcaster struct {
	hub *Hub
	mgr *stream.Manager

	windowCap int
	windows   map[string][]model.Candle // key: "symbol|tf"

	// Metrics hooks (optional).
	OnCandle           func(timeframe string, complete bool)
	OnIndicatorCompute func(seconds float64)
}

// NewBroadcaster wires the broadcaster. windowCap bounds the per-pair
// candle history kept for indicator computation.
func NewBroadcaster(hub *Hub, mgr *stream.Manager, windowCap int) *Broadcaster {
	if windowCap <= 0 {
		windowCap = 512
	}
	return &Broadcaster{
		hub:       hub,
		mgr:       mgr,
		windowCap: windowCap,
		windows:   make(map[string][]model.Candle),
	}
}

// Run consumes events until the stream closes or ctx is cancelled. It is
// the single consumer of the manager's event channel, which preserves
// per-pair FIFO through to session queues.
func (b *Broadcaster) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.mgr.Events():
			if !ok {
				return
			}
			b.dispatch(ev)
		}
	}
}

func (b *Broadcaster) dispatch(ev model.Candle) {
	if b.OnCandle != nil {
		b.OnCandle(ev.Timeframe, ev.Complete)
	}
	window := b.updateWindow(ev)
	sessions := b.hub.interested(ev.Symbol, ev.Timeframe)
	if len(sessions) == 0 {
		return
	}

	candleFrame := candleMessage(ev)
	for _, s := range sessions {
		s.enqueue(outMessage{
			msgType:   msgCandle,
			symbol:    ev.Symbol,
			timeframe: ev.Timeframe,
			payload:   candleFrame,
		})
	}

	b.dispatchIndicators(ev, window, sessions)
}

// dispatchIndicators computes the union of the sessions' indicator
// filters once, then sends each session only the names it asked for.
func (b *Broadcaster) dispatchIndicators(ev model.Candle, window []model.Candle, sessions []*Session) {
	union := make(map[string]bool)
	for _, s := range sessions {
		for _, name := range s.indicatorNames() {
			union[name] = true
		}
	}
	if len(union) == 0 {
		return
	}
	names := make([]string, 0, len(union))
	for name := range union {
		names = append(names, name)
	}
	sort.Strings(names)

	reqs := make([]indicator.Request, len(names))
	for i, name := range names {
		reqs[i] = indicator.Request{Name: name}
	}
	start := time.Now()
	results, errs := indicator.ComputeAll(indicator.FromCandles(window), reqs)
	if b.OnIndicatorCompute != nil {
		b.OnIndicatorCompute(time.Since(start).Seconds())
	}
	for name, err := range errs {
		slog.Warn("indicator compute failed", "indicator", name, "err", err)
	}

	latest := make(map[string]map[string]float64, len(results))
	for _, r := range results {
		latest[r.Name] = r.Latest()
	}

	for _, s := range sessions {
		wanted := s.indicatorNames()
		if len(wanted) == 0 {
			continue
		}
		values := make(map[string]map[string]float64, len(wanted))
		for _, name := range wanted {
			if v, ok := latest[name]; ok {
				values[name] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		s.enqueue(outMessage{
			msgType:   msgIndicator,
			symbol:    ev.Symbol,
			timeframe: ev.Timeframe,
			payload:   indicatorMessage(ev.Symbol, ev.Timeframe, values),
		})
	}
}

// updateWindow folds the event into the pair's rolling window: a partial
// replaces the forming tail candle, a completed one seals it.
func (b *Broadcaster) updateWindow(ev model.Candle) []model.Candle {
	key := ev.Key()
	w := b.windows[key]
	if n := len(w); n > 0 && w[n-1].BucketStart.Equal(ev.BucketStart) {
		w[n-1] = ev
	} else {
		w = append(w, ev)
		if len(w) > b.windowCap {
			w = w[len(w)-b.windowCap:]
		}
	}
	b.windows[key] = w
	return w
}
