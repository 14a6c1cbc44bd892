package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session weekday", time.Date(2026, 3, 4, 11, 0, 0, 0, IST), true},
		{"before open", time.Date(2026, 3, 4, 9, 0, 0, 0, IST), false},
		{"at open", time.Date(2026, 3, 4, 9, 15, 0, 0, IST), true},
		{"at close", time.Date(2026, 3, 4, 15, 30, 0, 0, IST), false},
		{"saturday", time.Date(2026, 3, 7, 11, 0, 0, 0, IST), false},
		{"sunday", time.Date(2026, 3, 8, 11, 0, 0, 0, IST), false},
		{"holi holiday", time.Date(2026, 3, 14, 11, 0, 0, 0, IST), false},
		{"republic day", time.Date(2026, 1, 26, 11, 0, 0, 0, IST), false},
	}
	for _, tc := range cases {
		if got := IsMarketOpen(tc.t); got != tc.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsMarketOpenConvertsZones(t *testing.T) {
	// 05:45 UTC is 11:15 IST, mid-session.
	utc := time.Date(2026, 3, 4, 5, 45, 0, 0, time.UTC)
	if !IsMarketOpen(utc) {
		t.Error("UTC instant inside IST session reported closed")
	}
}

func TestNextOpenSkipsWeekend(t *testing.T) {
	// Friday after close: next open is Monday 9:15.
	fri := time.Date(2026, 3, 6, 16, 0, 0, 0, IST)
	next := NextOpen(fri)
	if next.Weekday() != time.Monday || next.Hour() != 9 || next.Minute() != 15 {
		t.Errorf("NextOpen = %v, want Monday 09:15 IST", next)
	}
}

func TestStatusString(t *testing.T) {
	open := time.Date(2026, 3, 4, 11, 0, 0, 0, IST)
	if s := StatusString(open); s == "" || s[:4] != "open" {
		t.Errorf("StatusString(open session) = %q", s)
	}
	closed := time.Date(2026, 3, 7, 11, 0, 0, 0, IST)
	if s := StatusString(closed); s == "" || s[:6] != "closed" {
		t.Errorf("StatusString(weekend) = %q", s)
	}
}
