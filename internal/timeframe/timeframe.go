// Package timeframe is the single definition of interval naming and bucket
// alignment. Every component that needs to know which bucket a timestamp
// falls into must go through BucketStart — a second definition of the
// alignment math would make out-of-order handling nondeterministic.
package timeframe

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned for interval strings outside the canonical set.
var ErrInvalid = errors.New("invalid timeframe")

// canonical timeframes, ordered by width.
var canonical = []string{"1m", "3m", "5m", "10m", "15m", "30m", "1h", "2h", "4h", "1d", "1w", "1M"}

// seconds holds fixed widths. 1w and 1M are calendar-aligned and excluded.
var seconds = map[string]int64{
	"1m": 60, "3m": 180, "5m": 300, "10m": 600, "15m": 900, "30m": 1800,
	"1h": 3600, "2h": 7200, "4h": 14400, "1d": 86400,
}

var canonicalSet = func() map[string]bool {
	s := make(map[string]bool, len(canonical))
	for _, tf := range canonical {
		s[tf] = true
	}
	return s
}()

// Canonical returns the supported timeframes in width order.
func Canonical() []string {
	out := make([]string, len(canonical))
	copy(out, canonical)
	return out
}

// IsCanonical reports whether tf is already in canonical form.
func IsCanonical(tf string) bool {
	return canonicalSet[tf]
}

// Normalize converts a raw interval string to canonical form.
// Accepted inputs: canonical forms, "<n>min"/"<n>hour" spellings, and the
// word aliases daily/weekly/monthly. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalid
	}
	if canonicalSet[s] {
		return s, nil
	}

	switch strings.ToLower(s) {
	case "daily":
		return "1d", nil
	case "weekly":
		return "1w", nil
	case "monthly":
		return "1M", nil
	}

	// Split numeric prefix from unit suffix.
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return "", ErrInvalid
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return "", ErrInvalid
	}

	unit := s[i:]
	switch {
	case unit == "m" || strings.EqualFold(unit, "min"):
		unit = "m"
	case strings.EqualFold(unit, "h") || strings.EqualFold(unit, "hour"):
		unit = "h"
	case strings.EqualFold(unit, "d"):
		unit = "d"
	case strings.EqualFold(unit, "w"):
		unit = "w"
	case unit == "M":
		unit = "M"
	default:
		return "", ErrInvalid
	}

	tf := strconv.Itoa(n) + unit
	if !canonicalSet[tf] {
		return "", ErrInvalid
	}
	return tf, nil
}

// Seconds returns the fixed bucket width for intraday and daily timeframes.
// For 1w it returns 7 days; for 1M it returns 0 because the width is
// calendar-dependent (use Width for an instant-specific value).
func Seconds(tf string) int64 {
	if w, ok := seconds[tf]; ok {
		return w
	}
	if tf == "1w" {
		return 7 * 86400
	}
	return 0
}

// BucketStart returns the aligned start of the bucket containing ts.
// Intraday and daily widths floor on the epoch in UTC; 1w aligns to the
// preceding Monday 00:00 UTC; 1M aligns to the first instant of the
// containing calendar month. The input is never mutated.
func BucketStart(ts time.Time, tf string) time.Time {
	ts = ts.UTC()
	switch tf {
	case "1w":
		// Monday 00:00 UTC on or before ts.
		day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
		return day.AddDate(0, 0, -offset)
	case "1M":
		return time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		w := seconds[tf]
		if w == 0 {
			return ts // unknown timeframe; callers validate first
		}
		sec := ts.Unix()
		sec -= mod(sec, w)
		return time.Unix(sec, 0).UTC()
	}
}

// NextBucket returns the start of the bucket following start.
func NextBucket(start time.Time, tf string) time.Time {
	switch tf {
	case "1w":
		return start.AddDate(0, 0, 7)
	case "1M":
		return start.AddDate(0, 1, 0)
	default:
		return start.Add(time.Duration(seconds[tf]) * time.Second)
	}
}

// Width returns the bucket width at a given instant. Calendar timeframes
// (1w, 1M) get the width of the bucket containing at.
func Width(tf string, at time.Time) time.Duration {
	start := BucketStart(at, tf)
	return NextBucket(start, tf).Sub(start)
}

// mod is a floor modulo, correct for negative epochs.
func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}
