package api

import (
	"math"
	"time"

	"candleflow/internal/indicator"
	"candleflow/internal/model"
)

// errorBody is the uniform error envelope: {message, kind}.
type errorBody struct {
	Message string `json:"message"`
	Kind    string `json:"kind"`
}

// Error kinds on the REST boundary.
const (
	kindBadRequest       = "bad_request"
	kindUnknownIndicator = "unknown_indicator"
	kindInvalidParam     = "invalid_indicator_param"
	kindHistUnavailable  = "historical_unavailable"
	kindHistInvalid      = "historical_invalid_request"
	kindInternal         = "internal"
)

// calculateRequest is the body of POST /api/indicators/calculate.
// Intervals is used by the multi-timeframe variant; Interval by the
// single-timeframe one.
type calculateRequest struct {
	Symbol    string   `json:"symbol"`
	Exchange  string   `json:"exchange"`
	Interval  string   `json:"interval,omitempty"`
	Intervals []string `json:"intervals,omitempty"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`

	Indicators      []string                      `json:"indicators,omitempty"`
	IndicatorParams map[string]map[string]float64 `json:"indicator_params,omitempty"`
}

// indicatorError reports one failed indicator without failing the rest.
type indicatorError struct {
	Indicator string `json:"indicator"`
	Message   string `json:"message"`
	Kind      string `json:"kind"`
}

// seriesBlock is one interval's worth of computed series. Series values
// are nullable: warm-up positions render as null.
type seriesBlock struct {
	Timestamps []time.Time                      `json:"timestamps"`
	Candles    int                              `json:"candles"`
	Indicators map[string]map[string][]*float64 `json:"indicators"`
	Errors     []indicatorError                 `json:"errors,omitempty"`
}

// calculateResponse is the single-interval response shape.
type calculateResponse struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Interval string `json:"interval"`
	seriesBlock
}

// multiTimeframeResponse maps interval to its series block.
type multiTimeframeResponse struct {
	Symbol    string                 `json:"symbol"`
	Exchange  string                 `json:"exchange"`
	Intervals map[string]seriesBlock `json:"intervals"`
}

// latestResponse is GET /api/indicators/latest/{symbol}.
type latestResponse struct {
	Symbol     string                         `json:"symbol"`
	Exchange   string                         `json:"exchange"`
	Interval   string                         `json:"interval"`
	AsOf       time.Time                      `json:"as_of"`
	Indicators map[string]map[string]*float64 `json:"indicators"`
	Errors     []indicatorError               `json:"errors,omitempty"`
}

// catalogEntry describes one indicator in GET /api/indicators/available.
type catalogEntry struct {
	Name       string             `json:"name"`
	Category   string             `json:"category"`
	Outputs    []string           `json:"outputs"`
	Parameters map[string]float64 `json:"parameters"`
	MinPeriods int                `json:"min_periods"`
}

// srResponse is the support/resistance analysis payload.
type srResponse struct {
	Symbol       string        `json:"symbol"`
	Exchange     string        `json:"exchange"`
	Interval     string        `json:"interval"`
	Support      []model.Level `json:"support"`
	Resistance   []model.Level `json:"resistance"`
	Tolerance    float64       `json:"tolerance"`
	CurrentPrice float64       `json:"current_price"`
}

// nearestResponse is the nearest-level lookup payload.
type nearestResponse struct {
	Symbol string               `json:"symbol"`
	Price  float64              `json:"price"`
	Levels []model.NearestLevel `json:"levels"`
}

// candlesResponse is the historical pass-through payload.
type candlesResponse struct {
	Symbol   string         `json:"symbol"`
	Exchange string         `json:"exchange"`
	Interval string         `json:"interval"`
	Candles  []model.Candle `json:"candles"`
}

// nullable converts a series to JSON-safe pointers, mapping NaN and
// infinities to null.
func nullable(s []float64) []*float64 {
	out := make([]*float64, len(s))
	for i := range s {
		if !math.IsNaN(s[i]) && !math.IsInf(s[i], 0) {
			v := s[i]
			out[i] = &v
		}
	}
	return out
}

// nullableScalar maps one value to a JSON-safe pointer.
func nullableScalar(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// resultsToSeries renders engine results into the response shape.
func resultsToSeries(results []indicator.Result) map[string]map[string][]*float64 {
	out := make(map[string]map[string][]*float64, len(results))
	for _, r := range results {
		block := make(map[string][]*float64, len(r.Series))
		for name, s := range r.Series {
			block[name] = nullable(s)
		}
		out[r.Name] = block
	}
	return out
}
