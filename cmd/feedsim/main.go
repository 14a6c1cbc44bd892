// feedsim is a development tick source. It broadcasts random-walk ticks
// in the same JSON shape the live feed client consumes, so candled can
// run end to end without broker credentials:
//
//	FEED_URL=ws://localhost:9001/ws ./candled
//
// Config (env vars):
//
//	FEEDSIM_ADDR        — listen address (default ":9001")
//	FEEDSIM_SYMBOLS     — comma-separated SYMBOL:EXCHANGE:PRICE triples
//	                      (default "RELIANCE:NSE:2850,INFY:NSE:1520,NIFTY:NSE:25400")
//	FEEDSIM_INTERVAL_MS — broadcast interval (default 100)
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"candleflow/pkg/smartconnect"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol   string
	Exchange string
	Price    float64
}

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop tick
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Error("upgrade failed", "err", err)
			return
		}
		slog.Info("client connected", "addr", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("client disconnected", "addr", r.RemoteAddr)
		}()

		// Discard inbound frames so pings keep working.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// walkPrice applies a small random walk, at most ±0.1% per tick.
func walkPrice(rng *rand.Rand, price float64) float64 {
	pct := (rng.Float64()*0.2 - 0.1) / 100
	next := price * (1 + pct)
	if next < 1 {
		next = 1
	}
	return next
}

func runGenerator(h *hub, instruments []instrument, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for range ticker.C {
		for i := range instruments {
			instruments[i].Price = walkPrice(rng, instruments[i].Price)
			msg := smartconnect.FeedTick{
				Symbol:   instruments[i].Symbol,
				Exchange: instruments[i].Exchange,
				Price:    instruments[i].Price,
				Size:     float64(rng.Intn(100) + 1),
				TS:       time.Now().UTC(),
			}
			b, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "feedsim"))

	addr := envOrDefault("FEEDSIM_ADDR", ":9001")
	symbolsEnv := envOrDefault("FEEDSIM_SYMBOLS", "RELIANCE:NSE:2850,INFY:NSE:1520,NIFTY:NSE:25400")
	interval := time.Duration(envIntOrDefault("FEEDSIM_INTERVAL_MS", 100)) * time.Millisecond

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		slog.Error("no instruments configured via FEEDSIM_SYMBOLS")
		os.Exit(1)
	}
	slog.Info("starting", "addr", addr, "instruments", len(instruments), "interval", interval.String())

	h := newHub()
	go runGenerator(h, instruments, interval)

	http.HandleFunc("/ws", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"feedsim"}`)
	})

	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// parseInstruments parses SYMBOL:EXCHANGE:PRICE triples.
func parseInstruments(s string) []instrument {
	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 3)
		if len(seg) != 3 {
			slog.Warn("skipping invalid symbol spec", "spec", part)
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(seg[2]), 64)
		if err != nil || price <= 0 {
			slog.Warn("skipping symbol with bad price", "spec", part)
			continue
		}
		result = append(result, instrument{
			Symbol:   strings.ToUpper(strings.TrimSpace(seg[0])),
			Exchange: strings.ToUpper(strings.TrimSpace(seg[1])),
			Price:    price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
