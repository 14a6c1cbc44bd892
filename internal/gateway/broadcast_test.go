package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"candleflow/internal/marketdata/stream"
	"candleflow/internal/model"
)

func newTestHub(t *testing.T, cfg Config) (*Hub, *stream.Manager) {
	t.Helper()
	mgr := stream.NewManager(stream.Config{Grace: time.Hour})
	t.Cleanup(func() { mgr.Close(context.Background()) })
	return NewHub(cfg, mgr), mgr
}

// addBareSession registers a session without a socket, for direct
// fan-out tests.
func addBareSession(h *Hub, id string, indicators ...string) *Session {
	s := &Session{
		ID:         id,
		hub:        h,
		queue:      newOutQueue(h.cfg.QueueDepth),
		subs:       make(map[string]bool),
		indicators: make(map[string]bool),
		done:       make(chan struct{}),
	}
	for _, name := range indicators {
		s.indicators[name] = true
	}
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	return s
}

func testCandle(symbol string, minute int, complete bool) model.Candle {
	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	return model.Candle{
		Symbol: symbol, Timeframe: "1m",
		BucketStart: base.Add(time.Duration(minute) * time.Minute),
		Open:        100, High: 101, Low: 99, Close: 100.5,
		Volume: 10, VWAP: 100.2, TickCount: 3, Complete: complete,
	}
}

func TestFanoutReachesOnlySubscribed(t *testing.T) {
	h, mgr := newTestHub(t, Config{})
	b := NewBroadcaster(h, mgr, 16)

	a := addBareSession(h, "a")
	a.subs[subKey("RELIANCE", "1m")] = true
	other := addBareSession(h, "b")
	other.subs[subKey("INFY", "1m")] = true

	b.dispatch(testCandle("RELIANCE", 0, false))

	if a.queue.len() != 1 {
		t.Errorf("subscribed session queue = %d, want 1", a.queue.len())
	}
	if other.queue.len() != 0 {
		t.Errorf("unsubscribed session received %d messages", other.queue.len())
	}

	msg, _ := a.queue.dequeue()
	var frame map[string]any
	if err := json.Unmarshal(msg.payload, &frame); err != nil {
		t.Fatal(err)
	}
	if frame["type"] != "candle" || frame["symbol"] != "RELIANCE" || frame["complete"] != false {
		t.Errorf("bad frame: %v", frame)
	}
	if _, ok := frame["timestamp"]; !ok {
		t.Error("envelope missing timestamp")
	}
}

func TestStalledSessionStaysBoundedOthersUnaffected(t *testing.T) {
	h, mgr := newTestHub(t, Config{QueueDepth: 4})
	b := NewBroadcaster(h, mgr, 16)

	symbols := []string{"S0", "S1", "S2", "S3", "S4", "S5"}
	fast := addBareSession(h, "fast")
	stalled := addBareSession(h, "stalled")
	for _, sym := range symbols {
		fast.subs[subKey(sym, "1m")] = true
		stalled.subs[subKey(sym, "1m")] = true
	}

	var fastGot int
	for round := 0; round < 10; round++ {
		for _, sym := range symbols {
			b.dispatch(testCandle(sym, round, true))
			// The fast session drains immediately.
			for {
				if _, ok := fast.queue.dequeue(); !ok {
					break
				}
				fastGot++
			}
			if got := stalled.queue.len(); got > 4 {
				t.Fatalf("stalled queue grew to %d", got)
			}
		}
	}
	if fastGot != 10*len(symbols) {
		t.Errorf("fast session received %d, want %d", fastGot, 10*len(symbols))
	}
	if stalled.queue.dropCount() == 0 {
		t.Error("stalled session recorded no drops despite distinct-key backlog")
	}
}

func TestIndicatorFanoutFiltersPerSession(t *testing.T) {
	h, mgr := newTestHub(t, Config{})
	b := NewBroadcaster(h, mgr, 64)

	rsiOnly := addBareSession(h, "rsi-only", "rsi")
	rsiOnly.subs[subKey("RELIANCE", "1m")] = true
	plain := addBareSession(h, "plain")
	plain.subs[subKey("RELIANCE", "1m")] = true

	for i := 0; i < 30; i++ {
		b.dispatch(testCandle("RELIANCE", i, true))
	}

	var sawIndicator bool
	for {
		msg, ok := rsiOnly.queue.dequeue()
		if !ok {
			break
		}
		if msg.msgType != msgIndicator {
			continue
		}
		sawIndicator = true
		var frame struct {
			Indicators map[string]map[string]*float64 `json:"indicators"`
		}
		if err := json.Unmarshal(msg.payload, &frame); err != nil {
			t.Fatal(err)
		}
		if _, ok := frame.Indicators["rsi"]; !ok {
			t.Fatalf("indicator frame missing rsi: %s", msg.payload)
		}
		if len(frame.Indicators) != 1 {
			t.Errorf("unfiltered indicators: %s", msg.payload)
		}
	}
	if !sawIndicator {
		t.Error("filtered session received no indicator messages")
	}

	for {
		msg, ok := plain.queue.dequeue()
		if !ok {
			break
		}
		if msg.msgType == msgIndicator {
			t.Fatal("session without filter received indicator message")
		}
	}
}

func TestWindowPartialReplacesTail(t *testing.T) {
	h, mgr := newTestHub(t, Config{})
	b := NewBroadcaster(h, mgr, 16)

	p1 := testCandle("RELIANCE", 0, false)
	p1.TickCount = 1
	b.updateWindow(p1)
	p2 := testCandle("RELIANCE", 0, false)
	p2.TickCount = 2
	w := b.updateWindow(p2)
	if len(w) != 1 || w[0].TickCount != 2 {
		t.Fatalf("partial did not replace tail: %+v", w)
	}

	sealed := testCandle("RELIANCE", 0, true)
	w = b.updateWindow(sealed)
	if len(w) != 1 || !w[0].Complete {
		t.Fatalf("completed did not seal tail: %+v", w)
	}

	next := testCandle("RELIANCE", 1, false)
	if w = b.updateWindow(next); len(w) != 2 {
		t.Fatalf("next bucket did not append: %+v", w)
	}
}

func dialTestHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return frame
}

func TestSessionSubscribeFlow(t *testing.T) {
	h, mgr := newTestHub(t, Config{Heartbeat: time.Second})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	conn := dialTestHub(t, srv)

	// Bad symbol rejected.
	conn.WriteJSON(controlMessage{Action: "subscribe", Symbols: []string{"bad symbol"}, Timeframes: []string{"1m"}})
	if frame := readFrame(t, conn); frame["type"] != "error" || frame["kind"] != "bad_request" {
		t.Fatalf("want bad_request error, got %v", frame)
	}

	// Unknown action rejected.
	conn.WriteJSON(controlMessage{Action: "replay", Symbols: []string{"RELIANCE"}, Timeframes: []string{"1m"}})
	if frame := readFrame(t, conn); frame["kind"] != "bad_request" {
		t.Fatalf("want bad_request for unknown action, got %v", frame)
	}

	// Unknown indicator rejected.
	conn.WriteJSON(controlMessage{
		Action: "subscribe", Symbols: []string{"RELIANCE"},
		Timeframes: []string{"1m"}, Indicators: []string{"supertrend"},
	})
	if frame := readFrame(t, conn); frame["kind"] != "unknown_indicator" {
		t.Fatalf("want unknown_indicator, got %v", frame)
	}

	// Valid subscribe acks and wires the aggregator.
	conn.WriteJSON(controlMessage{Action: "subscribe", Symbols: []string{"reliance"}, Timeframes: []string{"1m"}})
	frame := readFrame(t, conn)
	if frame["type"] != "ack" || frame["action"] != "subscribed" {
		t.Fatalf("want subscribe ack, got %v", frame)
	}

	deadline := time.Now().Add(time.Second)
	for !mgr.HasAggregator("RELIANCE", "1m") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !mgr.HasAggregator("RELIANCE", "1m") {
		t.Fatal("subscribe did not create aggregator")
	}

	// A live tick flows through broadcaster to the socket.
	b := NewBroadcaster(h, mgr, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	mgr.ProcessTick(model.Tick{
		Symbol: "RELIANCE", Exchange: "NSE", Price: 2500, Size: 10,
		TS: time.Date(2026, 3, 4, 9, 30, 5, 0, time.UTC),
	})
	frame = readFrame(t, conn)
	if frame["type"] != "candle" || frame["symbol"] != "RELIANCE" {
		t.Fatalf("want candle frame, got %v", frame)
	}
}

func TestSubscribeFallsBackToDefaultTimeframes(t *testing.T) {
	h, mgr := newTestHub(t, Config{Heartbeat: time.Second, DefaultTimeframes: []string{"1m", "5m"}})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	conn := dialTestHub(t, srv)
	conn.WriteJSON(controlMessage{Action: "subscribe", Symbols: []string{"INFY"}})
	frame := readFrame(t, conn)
	if frame["type"] != "ack" {
		t.Fatalf("want ack, got %v", frame)
	}

	deadline := time.Now().Add(time.Second)
	for !mgr.HasAggregator("INFY", "5m") && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	for _, tf := range []string{"1m", "5m"} {
		if !mgr.HasAggregator("INFY", tf) {
			t.Errorf("default timeframe %s not registered", tf)
		}
	}
}

func TestShutdownDuringConnect(t *testing.T) {
	h, _ := newTestHub(t, Config{Heartbeat: time.Second})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	// Dial while Shutdown runs: sessions mid-upgrade must be closed or
	// refused, never left half-registered.
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err == nil {
				conn.Close()
			}
		}()
	}
	h.Shutdown(50 * time.Millisecond)
	wg.Wait()

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial after shutdown succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("refusal status = %v", resp)
	}
}

func TestCapacityRefusal(t *testing.T) {
	h, _ := newTestHub(t, Config{MaxSessions: 1, Heartbeat: time.Second})
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	defer srv.Close()

	dialTestHub(t, srv)
	deadline := time.Now().Add(time.Second)
	for h.SessionCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial beyond capacity succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("refusal status = %v, want 503", resp)
	}
}
