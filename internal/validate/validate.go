// Package validate rejects malformed requests before any state is touched.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"candleflow/internal/timeframe"
)

// Named validation errors, surfaced to callers as bad_request kinds.
var (
	ErrInvalidSymbol         = errors.New("invalid symbol")
	ErrInvalidExchange       = errors.New("invalid exchange")
	ErrInvalidTimeframe      = timeframe.ErrInvalid
	ErrInvalidDateRange      = errors.New("invalid date range")
	ErrInvalidIndicatorParam = errors.New("invalid indicator parameter")
)

// exchanges is the closed set of supported exchange segments.
var exchanges = map[string]bool{
	"NSE": true, "BSE": true, "NFO": true, "BFO": true, "MCX": true, "CDS": true,
}

// Exchanges returns the supported exchanges in a stable order.
func Exchanges() []string {
	return []string{"NSE", "BSE", "NFO", "BFO", "MCX", "CDS"}
}

// Symbol trims and uppercases a raw symbol, rejecting empty or malformed
// input. Whitespace is never accepted as data.
func Symbol(raw string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" || len(s) > 32 {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '&' || r == '_' || r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
		}
	}
	return s, nil
}

// Exchange validates against the closed exchange set.
func Exchange(raw string) (string, error) {
	e := strings.ToUpper(strings.TrimSpace(raw))
	if !exchanges[e] {
		return "", fmt.Errorf("%w: %q", ErrInvalidExchange, raw)
	}
	return e, nil
}

// Timeframe normalizes a raw interval string to canonical form.
func Timeframe(raw string) (string, error) {
	return timeframe.Normalize(raw)
}

// Timeframes normalizes a list of intervals, rejecting on the first bad one.
func Timeframes(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty list", timeframe.ErrInvalid)
	}
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		tf, err := timeframe.Normalize(r)
		if err != nil {
			return nil, err
		}
		if !seen[tf] {
			seen[tf] = true
			out = append(out, tf)
		}
	}
	return out, nil
}

// DateRange checks start < end.
func DateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return fmt.Errorf("%w: start=%v end=%v", ErrInvalidDateRange, start, end)
	}
	return nil
}

// ParseDateRange parses "2006-01-02" or RFC3339 strings and checks ordering.
func ParseDateRange(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parseDate(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrInvalidDateRange, startRaw)
	}
	end, err := parseDate(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrInvalidDateRange, endRaw)
	}
	if err := DateRange(start, end); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// IndicatorParam checks a single numeric indicator parameter. Period-like
// parameters must be positive integers; multipliers must be finite and > 0.
func IndicatorParam(name string, value float64) error {
	if value != value { // NaN
		return fmt.Errorf("%w: %s is NaN", ErrInvalidIndicatorParam, name)
	}
	if strings.Contains(name, "period") || strings.Contains(name, "window") {
		if value < 1 || value != float64(int(value)) {
			return fmt.Errorf("%w: %s=%v must be a positive integer", ErrInvalidIndicatorParam, name, value)
		}
		return nil
	}
	if value <= 0 {
		return fmt.Errorf("%w: %s=%v must be > 0", ErrInvalidIndicatorParam, name, value)
	}
	return nil
}
