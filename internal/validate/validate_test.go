package validate

import (
	"errors"
	"testing"
	"time"
)

func TestSymbol(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"RELIANCE", "RELIANCE", true},
		{" infy ", "INFY", true},
		{"M&M", "M&M", true},
		{"BAJAJ-AUTO", "BAJAJ-AUTO", true},
		{"NIFTY_50.X", "NIFTY_50.X", true},
		{"", "", false},
		{"   ", "", false},
		{"REL IANCE", "", false},
		{"REL;DROP", "", false},
	}
	for _, tc := range cases {
		got, err := Symbol(tc.in)
		if tc.ok != (err == nil) {
			t.Errorf("Symbol(%q) err=%v, want ok=%v", tc.in, err, tc.ok)
			continue
		}
		if tc.ok && got != tc.want {
			t.Errorf("Symbol(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidSymbol) {
			t.Errorf("Symbol(%q) error not ErrInvalidSymbol: %v", tc.in, err)
		}
	}
}

func TestExchange(t *testing.T) {
	for _, e := range []string{"NSE", "bse", " nfo ", "BFO", "MCX", "CDS"} {
		if _, err := Exchange(e); err != nil {
			t.Errorf("Exchange(%q) rejected: %v", e, err)
		}
	}
	for _, e := range []string{"", "NYSE", "NASDAQ", "NSE2"} {
		if _, err := Exchange(e); !errors.Is(err, ErrInvalidExchange) {
			t.Errorf("Exchange(%q) expected ErrInvalidExchange, got %v", e, err)
		}
	}
}

func TestTimeframes(t *testing.T) {
	got, err := Timeframes([]string{"1m", "5min", "1m", "daily"})
	if err != nil {
		t.Fatalf("Timeframes: %v", err)
	}
	want := []string{"1m", "5m", "1d"}
	if len(got) != len(want) {
		t.Fatalf("Timeframes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Timeframes[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := Timeframes(nil); err == nil {
		t.Error("Timeframes(nil) expected error")
	}
	if _, err := Timeframes([]string{"1m", "9m"}); !errors.Is(err, ErrInvalidTimeframe) {
		t.Errorf("expected ErrInvalidTimeframe, got %v", err)
	}
}

func TestParseDateRange(t *testing.T) {
	start, end, err := ParseDateRange("2026-01-01", "2026-02-01")
	if err != nil {
		t.Fatalf("ParseDateRange: %v", err)
	}
	if !start.Before(end) {
		t.Error("start not before end")
	}

	if _, _, err := ParseDateRange("2026-02-01", "2026-01-01"); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("reversed range: expected ErrInvalidDateRange, got %v", err)
	}
	if _, _, err := ParseDateRange("not-a-date", "2026-01-01"); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("garbage start: expected ErrInvalidDateRange, got %v", err)
	}
	if err := DateRange(time.Time{}, time.Now()); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("zero start: expected ErrInvalidDateRange, got %v", err)
	}
}

func TestIndicatorParam(t *testing.T) {
	if err := IndicatorParam("period", 14); err != nil {
		t.Errorf("period=14 rejected: %v", err)
	}
	if err := IndicatorParam("period", 14.5); !errors.Is(err, ErrInvalidIndicatorParam) {
		t.Errorf("fractional period: expected ErrInvalidIndicatorParam, got %v", err)
	}
	if err := IndicatorParam("period", 0); !errors.Is(err, ErrInvalidIndicatorParam) {
		t.Errorf("zero period: expected ErrInvalidIndicatorParam, got %v", err)
	}
	if err := IndicatorParam("std_dev", 2.5); err != nil {
		t.Errorf("std_dev=2.5 rejected: %v", err)
	}
	if err := IndicatorParam("std_dev", -1); !errors.Is(err, ErrInvalidIndicatorParam) {
		t.Errorf("negative multiplier: expected ErrInvalidIndicatorParam, got %v", err)
	}
}
