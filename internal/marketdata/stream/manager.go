// Package stream routes ticks to per-(symbol, timeframe) aggregators and
// owns their lifecycle. Each aggregator is driven by exactly one worker
// goroutine fed by a bounded inbound channel, preserving the aggregator's
// single-producer contract while symbols and timeframes run in parallel.
package stream

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"candleflow/internal/marketdata/agg"
	"candleflow/internal/model"
	"candleflow/internal/ringbuf"
)

// Config tunes the manager.
type Config struct {
	// QueueSize bounds each aggregator's inbound tick channel.
	QueueSize int
	// EventBuffer bounds the shared candle event channel.
	EventBuffer int
	// Grace is how long an aggregator with no interested sessions survives
	// before teardown. A re-subscribe during the window resurrects it,
	// open bucket intact.
	Grace time.Duration
	// TickBuffer sizes the diagnostics ring of recent ticks. 0 disables it.
	TickBuffer int
	// AggOptions is passed through to every aggregator.
	AggOptions agg.Options
}

func (c *Config) defaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 4096
	}
	if c.Grace <= 0 {
		c.Grace = 60 * time.Second
	}
}

// entry pairs an aggregator with its worker plumbing and interest set.
type entry struct {
	agg        *agg.Aggregator
	tickCh     chan model.Tick
	sessions   map[string]struct{}
	graceTimer *time.Timer
	retired    bool
}

// Manager owns the aggregator registry. Multi-producer on ProcessTick,
// multi-consumer via one worker per aggregator.
type Manager struct {
	cfg Config

	mu       sync.RWMutex
	bySymbol map[string]map[string]*entry // symbol → timeframe → entry
	closed   bool

	events chan model.Candle
	wg     sync.WaitGroup

	recent *ringbuf.Ring

	ticksSeen     atomic.Uint64
	dispatchDrops atomic.Uint64

	// Metrics hooks (optional, set externally).
	OnTick         func()
	OnDispatchDrop func()
	OnLateDropped  func()
}

// NewManager creates an empty manager. Aggregators are created lazily on
// first subscription; creation triggers no data fetch.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	m := &Manager{
		cfg:      cfg,
		bySymbol: make(map[string]map[string]*entry),
		events:   make(chan model.Candle, cfg.EventBuffer),
	}
	if cfg.TickBuffer > 0 {
		m.recent = ringbuf.New(cfg.TickBuffer)
	}
	return m
}

// Events returns the ordered candle event stream. Events for one
// (symbol, timeframe) appear in emission order; no ordering holds across
// pairs. The channel closes after Close completes its drain.
func (m *Manager) Events() <-chan model.Candle {
	return m.events
}

// Subscribe registers sessionID's interest in (symbol, timeframes),
// creating aggregators as needed. Idempotent per (session, pair).
func (m *Manager) Subscribe(sessionID, symbol string, tfs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	byTF := m.bySymbol[symbol]
	if byTF == nil {
		byTF = make(map[string]*entry)
		m.bySymbol[symbol] = byTF
	}

	for _, tf := range tfs {
		e := byTF[tf]
		if e == nil {
			e = &entry{
				agg:      agg.New(symbol, tf, m.cfg.AggOptions),
				tickCh:   make(chan model.Tick, m.cfg.QueueSize),
				sessions: make(map[string]struct{}),
			}
			e.agg.OnLateDropped = m.OnLateDropped
			byTF[tf] = e
			m.wg.Add(1)
			go m.runWorker(e)
			slog.Debug("aggregator created", "symbol", symbol, "tf", tf)
		}
		if e.graceTimer != nil {
			// Resurrection: cancel pending teardown, keep the open bucket.
			e.graceTimer.Stop()
			e.graceTimer = nil
		}
		e.sessions[sessionID] = struct{}{}
	}
}

// Unsubscribe removes interest. When an aggregator's interest set becomes
// empty it is scheduled for teardown after the grace period.
func (m *Manager) Unsubscribe(sessionID, symbol string, tfs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTF := m.bySymbol[symbol]
	if byTF == nil {
		return
	}
	for _, tf := range tfs {
		e := byTF[tf]
		if e == nil {
			continue
		}
		delete(e.sessions, sessionID)
		if len(e.sessions) == 0 && e.graceTimer == nil && !m.closed {
			sym, t := symbol, tf
			e.graceTimer = time.AfterFunc(m.cfg.Grace, func() {
				m.retire(sym, t)
			})
		}
	}
}

// DropSession removes every interest held by sessionID (disconnect path).
func (m *Manager) DropSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for symbol, byTF := range m.bySymbol {
		for tf, e := range byTF {
			if _, ok := e.sessions[sessionID]; !ok {
				continue
			}
			delete(e.sessions, sessionID)
			if len(e.sessions) == 0 && e.graceTimer == nil && !m.closed {
				sym, t := symbol, tf
				e.graceTimer = time.AfterFunc(m.cfg.Grace, func() {
					m.retire(sym, t)
				})
			}
		}
	}
}

// retire tears down an aggregator whose grace period elapsed with no
// re-subscription.
func (m *Manager) retire(symbol, tf string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byTF := m.bySymbol[symbol]
	if byTF == nil {
		return
	}
	e := byTF[tf]
	if e == nil || len(e.sessions) > 0 || e.retired {
		return
	}
	e.retired = true
	close(e.tickCh)
	delete(byTF, tf)
	if len(byTF) == 0 {
		delete(m.bySymbol, symbol)
	}
	slog.Debug("aggregator retired", "symbol", symbol, "tf", tf)
}

// ProcessTick dispatches a tick to every aggregator subscribed for its
// symbol. Each dispatch is a non-blocking send; a full worker queue drops
// the tick for that aggregator only.
func (m *Manager) ProcessTick(t model.Tick) {
	m.ticksSeen.Add(1)
	if m.OnTick != nil {
		m.OnTick()
	}
	if m.recent != nil {
		m.recent.PushOverwrite(t)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	byTF := m.bySymbol[t.Symbol]
	for _, e := range byTF {
		if e.retired {
			continue
		}
		select {
		case e.tickCh <- t:
		default:
			m.dispatchDrops.Add(1)
			if m.OnDispatchDrop != nil {
				m.OnDispatchDrop()
			}
		}
	}
}

// runWorker drives one aggregator. Tick channel closure (retirement or
// shutdown) flushes the open bucket as a final partial.
func (m *Manager) runWorker(e *entry) {
	defer m.wg.Done()
	for t := range e.tickCh {
		ev, err := e.agg.OnTick(t)
		if err != nil {
			// Invalid ticks are counted inside the aggregator and dropped;
			// they never terminate the worker.
			continue
		}
		for _, c := range ev.Completed {
			m.events <- c
		}
		if ev.Partial != nil {
			m.events <- *ev.Partial
		}
	}
	if final := e.agg.Flush(); final != nil {
		m.events <- *final
	}
}

// Close stops all workers, drains their final partials into the event
// channel and closes it. Returns ctx.Err if the drain misses the deadline.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	for symbol, byTF := range m.bySymbol {
		for tf, e := range byTF {
			if e.graceTimer != nil {
				e.graceTimer.Stop()
			}
			if !e.retired {
				e.retired = true
				close(e.tickCh)
			}
			delete(byTF, tf)
		}
		delete(m.bySymbol, symbol)
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		close(m.events)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats is a diagnostics snapshot for the system-status endpoint.
type Stats struct {
	Aggregators   int    `json:"aggregators"`
	TicksSeen     uint64 `json:"ticks_seen"`
	DispatchDrops uint64 `json:"dispatch_drops"`
	LateDropped   uint64 `json:"late_dropped"`
	RecentTicks   int    `json:"recent_ticks"`
}

// Snapshot returns current counters.
func (m *Manager) Snapshot() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{
		TicksSeen:     m.ticksSeen.Load(),
		DispatchDrops: m.dispatchDrops.Load(),
	}
	for _, byTF := range m.bySymbol {
		for _, e := range byTF {
			s.Aggregators++
			s.LateDropped += e.agg.LateDropped()
		}
	}
	if m.recent != nil {
		s.RecentTicks = m.recent.Len()
	}
	return s
}

// HasAggregator reports whether a live aggregator exists for the pair.
// Test and diagnostics helper.
func (m *Manager) HasAggregator(symbol, tf string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byTF := m.bySymbol[symbol]
	if byTF == nil {
		return false
	}
	_, ok := byTF[tf]
	return ok
}
