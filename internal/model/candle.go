package model

import (
	"encoding/json"
	"time"
)

// Candle represents one OHLCV bucket for a (symbol, timeframe) pair.
// While Complete is false the candle is the currently forming bucket and its
// values change with every tick; once Complete is true it is immutable.
type Candle struct {
	Symbol      string    `json:"symbol"`
	Timeframe   string    `json:"timeframe"`
	BucketStart time.Time `json:"bucket_start"` // UTC, aligned to the timeframe
	Open        float64   `json:"open"`
	High        float64   `json:"high"`
	Low         float64   `json:"low"`
	Close       float64   `json:"close"`
	Volume      float64   `json:"volume"`
	VWAP        float64   `json:"vwap"`
	TickCount   int       `json:"tick_count"`
	Complete    bool      `json:"complete"`
}

// Key returns "symbol|timeframe", the pipeline routing key.
func (c *Candle) Key() string {
	return c.Symbol + "|" + c.Timeframe
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Valid reports whether the candle satisfies the OHLCV invariants:
// low ≤ open,close ≤ high, volume ≥ 0 and at least one tick.
func (c *Candle) Valid() bool {
	if c.TickCount < 1 || c.Volume < 0 {
		return false
	}
	if c.Low > c.High {
		return false
	}
	if c.Open < c.Low || c.Open > c.High {
		return false
	}
	if c.Close < c.Low || c.Close > c.High {
		return false
	}
	return true
}
