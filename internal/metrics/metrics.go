// Package metrics exposes Prometheus instrumentation and the health
// endpoint for the candle pipeline.
package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"candleflow/internal/markethours"
)

// Metrics holds all Prometheus series for the pipeline.
type Metrics struct {
	TicksTotal    prometheus.Counter
	CandlesTotal  *prometheus.CounterVec // labels: timeframe, complete
	DispatchDrops prometheus.Counter
	LateTicks     prometheus.Counter

	Aggregators prometheus.Gauge

	SessionsOpen     prometheus.Gauge
	SessionsRefused  prometheus.Counter
	SessionDrops     prometheus.Counter
	SlowConsumers    prometheus.Counter
	FeedReconnects   prometheus.Counter
	HistoricalCalls  *prometheus.CounterVec // labels: outcome
	IndicatorCompute prometheus.Histogram
}

// New registers and returns the metric set.
func New() *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_ticks_total",
			Help: "Total ticks ingested",
		}),
		CandlesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candleflow_candles_total",
			Help: "Candle events emitted, by timeframe and completeness",
		}, []string{"timeframe", "complete"}),
		DispatchDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_dispatch_drops_total",
			Help: "Ticks dropped on full aggregator queues",
		}),
		LateTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_late_ticks_total",
			Help: "Ticks dropped for arriving behind their bucket",
		}),
		Aggregators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleflow_aggregators",
			Help: "Live (symbol, timeframe) aggregators",
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "candleflow_sessions_open",
			Help: "Connected subscriber sessions",
		}),
		SessionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_sessions_refused_total",
			Help: "Connections refused at the session cap",
		}),
		SessionDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_session_drops_total",
			Help: "Outbound messages dropped across all sessions",
		}),
		SlowConsumers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_slow_consumers_total",
			Help: "Sessions terminated for sustained queue overflow",
		}),
		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "candleflow_feed_reconnects_total",
			Help: "Upstream tick feed reconnections",
		}),
		HistoricalCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "candleflow_historical_calls_total",
			Help: "Historical source calls, by outcome",
		}, []string{"outcome"}),
		IndicatorCompute: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "candleflow_indicator_compute_seconds",
			Help:    "Indicator engine latency per window",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
	}
	prometheus.MustRegister(
		m.TicksTotal, m.CandlesTotal, m.DispatchDrops, m.LateTicks,
		m.Aggregators, m.SessionsOpen, m.SessionsRefused, m.SessionDrops,
		m.SlowConsumers, m.FeedReconnects, m.HistoricalCalls, m.IndicatorCompute,
	)
	return m
}

// Health tracks liveness facts for /healthz.
type Health struct {
	StartedAt time.Time

	mu           sync.RWMutex
	feedUp       bool
	lastTick     time.Time
	sessionCount func() int
	aggregators  func() int
}

// NewHealth creates a health tracker. The count funcs may be nil.
func NewHealth(sessionCount, aggregators func() int) *Health {
	return &Health{
		StartedAt:    time.Now(),
		sessionCount: sessionCount,
		aggregators:  aggregators,
	}
}

// SetFeedUp records upstream feed connectivity.
func (h *Health) SetFeedUp(v bool) {
	h.mu.Lock()
	h.feedUp = v
	h.mu.Unlock()
}

// NoteTick records tick receipt time for staleness reporting.
func (h *Health) NoteTick(t time.Time) {
	h.mu.Lock()
	h.lastTick = t
	h.mu.Unlock()
}

// ServeHTTP handles /healthz. Degraded when the feed is down during
// market hours.
func (h *Health) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	feedUp := h.feedUp
	lastTick := h.lastTick
	h.mu.RUnlock()

	now := time.Now()
	status := "healthy"
	code := http.StatusOK
	if !feedUp && markethours.IsMarketOpen(now) {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	tickAge := ""
	if !lastTick.IsZero() {
		tickAge = now.Sub(lastTick).Round(time.Millisecond).String()
	}
	body := map[string]any{
		"status":        status,
		"uptime":        now.Sub(h.StartedAt).Round(time.Second).String(),
		"feed_up":       feedUp,
		"tick_age":      tickAge,
		"market_status": markethours.StatusString(now),
	}
	if h.sessionCount != nil {
		body["sessions"] = h.sessionCount()
	}
	if h.aggregators != nil {
		body["aggregators"] = h.aggregators()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

// Server exposes /metrics and /healthz on its own listener.
type Server struct {
	srv *http.Server
}

// NewServer builds the metrics server.
func NewServer(addr string, health *Health) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)
	return &Server{srv: &http.Server{Addr: addr, Handler: mux}}
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
