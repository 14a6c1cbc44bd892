package levels

import (
	"errors"
	"fmt"

	"candleflow/internal/model"
)

// ErrUnknownPivotMethod rejects methods outside the supported set.
var ErrUnknownPivotMethod = errors.New("unknown pivot method")

// Pivot methods.
const (
	PivotStandard  = "standard"
	PivotFibonacci = "fibonacci"
	PivotWoodie    = "woodie"
)

// Pivots computes classic pivot levels from the previous period's OHLC.
func Pivots(method string, prev model.Candle) (model.PivotLevels, error) {
	h, l, c := prev.High, prev.Low, prev.Close
	rng := h - l
	out := model.PivotLevels{Method: method}

	switch method {
	case PivotStandard:
		pp := (h + l + c) / 3
		out.PP = pp
		out.R1 = 2*pp - l
		out.S1 = 2*pp - h
		out.R2 = pp + rng
		out.S2 = pp - rng
		out.R3 = h + 2*(pp-l)
		out.S3 = l - 2*(h-pp)
	case PivotFibonacci:
		pp := (h + l + c) / 3
		out.PP = pp
		out.R1 = pp + 0.382*rng
		out.S1 = pp - 0.382*rng
		out.R2 = pp + 0.618*rng
		out.S2 = pp - 0.618*rng
		out.R3 = pp + rng
		out.S3 = pp - rng
	case PivotWoodie:
		pp := (h + l + 2*c) / 4
		out.PP = pp
		out.R1 = 2*pp - l
		out.S1 = 2*pp - h
		out.R2 = pp + rng
		out.S2 = pp - rng
		out.R3 = h + 2*(pp-l)
		out.S3 = l - 2*(h-pp)
	default:
		return model.PivotLevels{}, fmt.Errorf("%w: %q", ErrUnknownPivotMethod, method)
	}
	return out, nil
}
