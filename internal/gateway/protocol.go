package gateway

import (
	"encoding/json"
	"math"
	"time"

	"candleflow/internal/model"
)

// Outbound message types.
const (
	msgCandle    = "candle"
	msgIndicator = "indicator"
	msgAck       = "ack"
	msgError     = "error"
)

// Error kinds carried in error envelopes.
const (
	kindBadRequest       = "bad_request"
	kindUnknownIndicator = "unknown_indicator"
	kindInvalidParam     = "invalid_indicator_param"
	kindCapacity         = "capacity"
	kindSlowConsumer     = "slow_consumer"
)

// controlMessage is the inbound subscribe/unsubscribe shape.
type controlMessage struct {
	Action     string   `json:"action"`
	Symbols    []string `json:"symbols"`
	Timeframes []string `json:"timeframes"`
	Indicators []string `json:"indicators,omitempty"`
}

// envelope stamps type and timestamp onto a payload map and marshals it.
func envelope(msgType string, payload map[string]any) []byte {
	payload["type"] = msgType
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339Nano)
	b, _ := json.Marshal(payload)
	return b
}

func candleMessage(c model.Candle) []byte {
	return envelope(msgCandle, map[string]any{
		"symbol":    c.Symbol,
		"timeframe": c.Timeframe,
		"complete":  c.Complete,
		"data":      c,
	})
}

func indicatorMessage(symbol, timeframe string, values map[string]map[string]float64) []byte {
	indicators := make(map[string]any, len(values))
	for name, outputs := range values {
		sanitized := make(map[string]any, len(outputs))
		for out, v := range outputs {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				sanitized[out] = nil
			} else {
				sanitized[out] = v
			}
		}
		indicators[name] = sanitized
	}
	return envelope(msgIndicator, map[string]any{
		"symbol":     symbol,
		"timeframe":  timeframe,
		"indicators": indicators,
	})
}

func ackMessage(action string, symbols, timeframes []string) []byte {
	return envelope(msgAck, map[string]any{
		"action":     action,
		"symbols":    symbols,
		"timeframes": timeframes,
	})
}

func errorMessage(kind, message string) []byte {
	return envelope(msgError, map[string]any{
		"kind":    kind,
		"message": message,
	})
}
