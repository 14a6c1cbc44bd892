// Package gateway accepts WebSocket subscriber sessions and fans
// candle and indicator events out to them with per-session bounded
// queues and backpressure.
package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"candleflow/internal/marketdata/stream"
)

// Config tunes the hub.
type Config struct {
	// MaxSessions is the hard session cap; connections beyond it are
	// refused before upgrade.
	MaxSessions int
	// QueueDepth bounds each session's outbound queue.
	QueueDepth int
	// DropThreshold is the rolling-window drop count that terminates a
	// slow consumer.
	DropThreshold int
	// DropWindow is the rolling window for DropThreshold.
	DropWindow time.Duration
	// Heartbeat is the ping interval; liveness timeout is twice this.
	Heartbeat time.Duration
	// DefaultTimeframes apply to subscribe messages that omit timeframes.
	// Empty means timeframes are mandatory.
	DefaultTimeframes []string
	// CheckOrigin overrides the upgrader origin policy. Nil allows all.
	CheckOrigin func(*http.Request) bool
}

func (c *Config) defaults() {
	if c.MaxSessions <= 0 {
		c.MaxSessions = 100
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.DropThreshold <= 0 {
		c.DropThreshold = 64
	}
	if c.DropWindow <= 0 {
		c.DropWindow = 10 * time.Second
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 30 * time.Second
	}
}

// Hub owns the session registry.
type Hub struct {
	cfg      Config
	mgr      *stream.Manager
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[string]*Session
	refusing bool

	// Metrics hooks (optional).
	OnSessionOpen  func()
	OnSessionClose func()
	OnRefused      func()
	OnSlowConsumer func()
	OnSessionDrops func(n uint64)
}

// NewHub wires the hub to the tick stream manager.
func NewHub(cfg Config, mgr *stream.Manager) *Hub {
	cfg.defaults()
	h := &Hub{
		cfg:      cfg,
		mgr:      mgr,
		sessions: make(map[string]*Session),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     cfg.CheckOrigin,
	}
	if h.upgrader.CheckOrigin == nil {
		h.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	}
	return h
}

// HandleWS upgrades a subscriber connection. Past the session cap the
// attempt is refused with a capacity error before any upgrade happens.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.refusing || len(h.sessions) >= h.cfg.MaxSessions {
		h.mu.Unlock()
		if h.OnRefused != nil {
			h.OnRefused()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"kind":    kindCapacity,
			"message": "session limit reached",
		})
		return
	}
	// Reserve the slot before the upgrade so concurrent attempts cannot
	// overshoot the cap.
	s := &Session{
		ID:         uuid.New().String(),
		hub:        h,
		queue:      newOutQueue(h.cfg.QueueDepth),
		subs:       make(map[string]bool),
		indicators: make(map[string]bool),
		done:       make(chan struct{}),
	}
	h.sessions[s.ID] = s
	h.mu.Unlock()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Release the reserved slot without the close hook: no open hook
		// ever fired for this attempt.
		h.mu.Lock()
		delete(h.sessions, s.ID)
		h.mu.Unlock()
		s.queue.close()
		return
	}
	// Published under the session mutex: Shutdown may force-close the
	// socket of a session that registered mid-upgrade.
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	if h.OnSessionOpen != nil {
		h.OnSessionOpen()
	}
	slog.Info("session connected", "session", s.ID, "remote", r.RemoteAddr)

	go s.writePump()
	go s.readPump()
}

// remove deregisters a session and releases its stream interests.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	_, present := h.sessions[s.ID]
	delete(h.sessions, s.ID)
	h.mu.Unlock()
	if !present {
		return
	}
	s.queue.close()
	h.mgr.DropSession(s.ID)
	if h.OnSessionClose != nil {
		h.OnSessionClose()
	}
	if h.OnSessionDrops != nil {
		if n := s.queue.dropCount(); n > 0 {
			h.OnSessionDrops(n)
		}
	}
	slog.Info("session disconnected", "session", s.ID, "drops", s.queue.dropCount())
}

// interested snapshots the sessions subscribed to (symbol, timeframe).
func (h *Hub) interested(symbol, tf string) []*Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*Session
	for _, s := range h.sessions {
		if s.subscribedTo(symbol, tf) {
			out = append(out, s)
		}
	}
	return out
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown stops accepting connections and closes every session. Any
// session still draining when the deadline hits is dropped with it.
func (h *Hub) Shutdown(deadline time.Duration) {
	h.mu.Lock()
	h.refusing = true
	open := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		open = append(open, s)
	}
	h.mu.Unlock()

	for _, s := range open {
		s.close()
	}
	wait := deadline
	if wait > 250*time.Millisecond {
		wait = 250 * time.Millisecond
	}
	time.Sleep(wait)
	for _, s := range open {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}
}
