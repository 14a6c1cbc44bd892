package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"candleflow/internal/indicator"
	"candleflow/internal/validate"
)

// Session is one accepted subscriber connection. The read pump handles
// control messages; the write pump is the sole writer on the socket and
// drains the bounded outbound queue.
type Session struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn

	queue *outQueue

	mu         sync.RWMutex
	subs       map[string]bool // "symbol|tf"
	indicators map[string]bool // optional indicator-name filter
	final      []byte          // terminal error frame, written before close

	closeOnce sync.Once
	done      chan struct{}
}

func subKey(symbol, tf string) string { return symbol + "|" + tf }

// subscribedTo reports interest in one (symbol, timeframe) pair.
func (s *Session) subscribedTo(symbol, tf string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.subs[subKey(symbol, tf)]
}

// indicatorNames returns the session's filter as a slice; empty means
// the session receives no indicator messages.
func (s *Session) indicatorNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.indicators))
	for name := range s.indicators {
		out = append(out, name)
	}
	return out
}

// enqueue pushes a pre-built frame, terminating the session when the
// rolling drop count trips the slow-consumer threshold.
func (s *Session) enqueue(msg outMessage) {
	_, tripped := s.queue.enqueue(msg, s.hub.cfg.DropThreshold, s.hub.cfg.DropWindow)
	if tripped {
		if s.hub.OnSlowConsumer != nil {
			s.hub.OnSlowConsumer()
		}
		go s.terminate(kindSlowConsumer, "outbound queue overflow")
	}
}

// terminate closes the session after emitting one final error frame.
func (s *Session) terminate(kind, message string) {
	s.mu.Lock()
	if s.final == nil {
		s.final = errorMessage(kind, message)
	}
	s.mu.Unlock()
	s.close()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.queue.close()
		s.hub.remove(s)
	})
}

// readPump consumes control messages until the peer goes away. Liveness:
// the read deadline is twice the heartbeat interval, refreshed on pong.
func (s *Session) readPump() {
	defer func() {
		s.close()
		s.conn.Close()
	}()

	liveness := 2 * s.hub.cfg.Heartbeat
	s.conn.SetReadLimit(8192)
	s.conn.SetReadDeadline(time.Now().Add(liveness))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(liveness))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindBadRequest, "malformed control message")})
			continue
		}
		switch msg.Action {
		case "subscribe":
			s.handleSubscribe(msg)
		case "unsubscribe":
			s.handleUnsubscribe(msg)
		default:
			s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindBadRequest, "unknown action "+msg.Action)})
		}
	}
}

func (s *Session) validateControl(msg controlMessage) ([]string, []string, bool) {
	if len(msg.Symbols) == 0 {
		s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindBadRequest, "symbols required")})
		return nil, nil, false
	}
	symbols := make([]string, 0, len(msg.Symbols))
	for _, raw := range msg.Symbols {
		sym, err := validate.Symbol(raw)
		if err != nil {
			s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindBadRequest, err.Error())})
			return nil, nil, false
		}
		symbols = append(symbols, sym)
	}
	rawTFs := msg.Timeframes
	if len(rawTFs) == 0 {
		rawTFs = s.hub.cfg.DefaultTimeframes
	}
	tfs, err := validate.Timeframes(rawTFs)
	if err != nil {
		s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindBadRequest, err.Error())})
		return nil, nil, false
	}
	return symbols, tfs, true
}

func (s *Session) handleSubscribe(msg controlMessage) {
	symbols, tfs, ok := s.validateControl(msg)
	if !ok {
		return
	}
	for _, name := range msg.Indicators {
		if _, known := indicator.Lookup(name); !known {
			s.enqueue(outMessage{msgType: msgError, payload: errorMessage(kindUnknownIndicator, "unknown indicator "+name)})
			return
		}
	}

	s.mu.Lock()
	for _, sym := range symbols {
		for _, tf := range tfs {
			s.subs[subKey(sym, tf)] = true
		}
	}
	for _, name := range msg.Indicators {
		s.indicators[name] = true
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		s.hub.mgr.Subscribe(s.ID, sym, tfs)
	}
	slog.Debug("session subscribed", "session", s.ID, "symbols", symbols, "tfs", tfs)
	s.enqueue(outMessage{msgType: msgAck, payload: ackMessage("subscribed", symbols, tfs)})
}

func (s *Session) handleUnsubscribe(msg controlMessage) {
	symbols, tfs, ok := s.validateControl(msg)
	if !ok {
		return
	}
	s.mu.Lock()
	for _, sym := range symbols {
		for _, tf := range tfs {
			delete(s.subs, subKey(sym, tf))
		}
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		s.hub.mgr.Unsubscribe(s.ID, sym, tfs)
	}
	s.enqueue(outMessage{msgType: msgAck, payload: ackMessage("unsubscribed", symbols, tfs)})
}

// writePump is the only goroutine writing to the socket. It drains the
// queue, emits heartbeats and flushes the terminal frame on close.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.cfg.Heartbeat)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	writeDeadline := func() time.Time { return time.Now().Add(10 * time.Second) }

	for {
		if msg, ok := s.queue.dequeue(); ok {
			s.conn.SetWriteDeadline(writeDeadline())
			if err := s.conn.WriteMessage(websocket.TextMessage, msg.payload); err != nil {
				s.close()
				return
			}
			continue
		}
		select {
		case <-s.queue.notify:
		case <-ticker.C:
			s.conn.SetWriteDeadline(writeDeadline())
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			s.mu.RLock()
			final := s.final
			s.mu.RUnlock()
			if final != nil {
				s.conn.SetWriteDeadline(writeDeadline())
				s.conn.WriteMessage(websocket.TextMessage, final)
			}
			s.conn.SetWriteDeadline(writeDeadline())
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
