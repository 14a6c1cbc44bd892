package model

import "time"

// Level kinds.
const (
	LevelSupport    = "support"
	LevelResistance = "resistance"
)

// Level is a derived support/resistance price level. Levels are computed on
// demand from a candle window and are never persisted.
type Level struct {
	Price     float64   `json:"price"`
	Kind      string    `json:"kind"`     // "support" | "resistance"
	Strength  float64   `json:"strength"` // normalized to [0,1]
	Touches   int       `json:"touches"`
	LastTouch time.Time `json:"last_touch"`
}

// NearestLevel annotates a Level with its distance from a reference price.
type NearestLevel struct {
	Level
	Distance    float64 `json:"distance"`
	DistancePct float64 `json:"distance_pct"`
}

// PivotLevels holds one period's classic pivot points.
type PivotLevels struct {
	Method string  `json:"method"` // "standard" | "fibonacci" | "woodie"
	PP     float64 `json:"pp"`
	R1     float64 `json:"r1"`
	R2     float64 `json:"r2"`
	R3     float64 `json:"r3"`
	S1     float64 `json:"s1"`
	S2     float64 `json:"s2"`
	S3     float64 `json:"s3"`
}
