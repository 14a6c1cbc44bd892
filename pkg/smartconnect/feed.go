package smartconnect

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// FeedTick is one trade print from the streaming feed.
type FeedTick struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	TS       time.Time `json:"ts"`
}

// FeedConfig configures the streaming feed connection.
type FeedConfig struct {
	URL        string
	APIKey     string
	ClientCode string
	FeedToken  string
	AuthToken  string

	// Heartbeat is the ping interval; the read deadline is twice this.
	Heartbeat time.Duration
	// MaxBackoff caps the reconnect delay.
	MaxBackoff time.Duration
}

func (c *FeedConfig) defaults() {
	if c.Heartbeat == 0 {
		c.Heartbeat = 10 * time.Second
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 30 * time.Second
	}
}

// Feed is the tick stream client. It reconnects with capped exponential
// backoff until its context is cancelled.
type Feed struct {
	cfg FeedConfig

	// OnTick receives every parsed tick. Must be set before Run.
	OnTick func(FeedTick)
	// OnConnect fires after each successful (re)connection.
	OnConnect func()
}

// NewFeed builds a feed client.
func NewFeed(cfg FeedConfig) *Feed {
	cfg.defaults()
	return &Feed{cfg: cfg}
}

// Run connects and pumps ticks until ctx is cancelled. Connection loss
// triggers a reconnect; the caller owns resubscription state upstream,
// the feed here is a firehose with no per-connection subscriptions.
func (f *Feed) Run(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		err := f.runOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		slog.Warn("feed disconnected", "err", err, "retry_in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) error {
	header := http.Header{}
	if f.cfg.AuthToken != "" {
		header.Set("Authorization", f.cfg.AuthToken)
		header.Set("x-api-key", f.cfg.APIKey)
		header.Set("x-client-code", f.cfg.ClientCode)
		header.Set("x-feed-token", f.cfg.FeedToken)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.cfg.URL, header)
	if err != nil {
		return err
	}
	defer conn.Close()
	slog.Info("feed connected", "url", f.cfg.URL)
	if f.OnConnect != nil {
		f.OnConnect()
	}

	// Close the socket when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	liveness := 2 * f.cfg.Heartbeat
	conn.SetReadDeadline(time.Now().Add(liveness))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(liveness))
		return nil
	})

	pinger := time.NewTicker(f.cfg.Heartbeat)
	defer pinger.Stop()
	go func() {
		for {
			select {
			case <-pinger.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick FeedTick
		if err := json.Unmarshal(raw, &tick); err != nil {
			slog.Debug("feed frame skipped", "err", err)
			continue
		}
		if tick.TS.IsZero() {
			tick.TS = time.Now().UTC()
		}
		if f.OnTick != nil {
			f.OnTick(tick)
		}
	}
}
