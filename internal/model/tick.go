package model

import "time"

// Tick represents a single trade print from the upstream feed.
type Tick struct {
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	TS       time.Time `json:"ts"` // UTC exchange timestamp
}

// Key returns "exchange:symbol".
func (t *Tick) Key() string {
	return t.Exchange + ":" + t.Symbol
}
