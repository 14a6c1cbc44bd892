package levels

import (
	"errors"
	"math"
	"testing"
	"time"

	"candleflow/internal/model"
)

// contrivedDaily builds a 300-bar daily series with a quiet baseline and
// deterministic swing touches: resistance near 150 (bars 50, 130, 250)
// and 160 (bar 220), support near 100 (bars 10, 90, 200). Baseline true
// range is exactly 2.0, so trailing ATR(14) is 2.0.
func contrivedDaily() []model.Candle {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, 300)
	for i := range candles {
		c := model.Candle{
			Symbol: "RELIANCE", Timeframe: "1d",
			BucketStart: base.AddDate(0, 0, i),
			Open:        120, High: 121, Low: 119, Close: 120,
			Volume: 1000, TickCount: 50, Complete: true,
		}
		switch i {
		case 50, 130, 250:
			c.High = 150
		case 220:
			c.High = 160
		case 10, 90, 200:
			c.Low = 100
		}
		candles[i] = c
	}
	return candles
}

func TestAnalyzeContrivedSeries(t *testing.T) {
	candles := contrivedDaily()
	p := Params{WindowW: 3, ProminenceMult: 0.5, HalfLifeBars: 200, ATRMult: 1.0, MaxLevels: 10}
	a := Analyze(candles, p, 120)

	if math.Abs(a.Tolerance-2.0) > 0.1 {
		t.Errorf("tolerance = %v, want ~2.0 (ATR)", a.Tolerance)
	}
	if len(a.Resistance) != 2 {
		t.Fatalf("resistance levels = %d, want 2: %+v", len(a.Resistance), a.Resistance)
	}
	// More touches and recent weight put 150 first.
	if math.Abs(a.Resistance[0].Price-150) > 0.5 {
		t.Errorf("resistance[0].Price = %v, want ~150", a.Resistance[0].Price)
	}
	if a.Resistance[0].Touches < 3 {
		t.Errorf("resistance[0].Touches = %d, want >= 3", a.Resistance[0].Touches)
	}
	if math.Abs(a.Resistance[1].Price-160) > 0.5 {
		t.Errorf("resistance[1].Price = %v, want ~160", a.Resistance[1].Price)
	}
	if a.Resistance[1].Touches < 1 {
		t.Errorf("resistance[1].Touches = %d, want >= 1", a.Resistance[1].Touches)
	}

	if len(a.Support) != 1 {
		t.Fatalf("support levels = %d, want 1: %+v", len(a.Support), a.Support)
	}
	if math.Abs(a.Support[0].Price-100) > 0.5 {
		t.Errorf("support[0].Price = %v, want ~100", a.Support[0].Price)
	}
	if a.Support[0].Touches != 3 {
		t.Errorf("support[0].Touches = %d, want 3", a.Support[0].Touches)
	}

	// The triple-touch resistance is the strongest level in the run.
	if a.Resistance[0].Strength != 1.0 {
		t.Errorf("resistance[0].Strength = %v, want 1.0", a.Resistance[0].Strength)
	}
	for _, l := range append(append([]model.Level(nil), a.Support...), a.Resistance...) {
		if l.Strength < 0 || l.Strength > 1 {
			t.Errorf("strength %v outside [0,1]", l.Strength)
		}
		if l.Kind != model.LevelSupport && l.Kind != model.LevelResistance {
			t.Errorf("bad kind %q", l.Kind)
		}
		if l.LastTouch.IsZero() {
			t.Errorf("missing last_touch on %+v", l)
		}
	}

	// Last touch reflects the most recent member bar.
	want := candles[250].BucketStart
	if !a.Resistance[0].LastTouch.Equal(want) {
		t.Errorf("resistance[0].LastTouch = %v, want %v", a.Resistance[0].LastTouch, want)
	}
}

func TestAnalyzeFlatSeries(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]model.Candle, 100)
	for i := range candles {
		candles[i] = model.Candle{
			Symbol: "RELIANCE", Timeframe: "1d",
			BucketStart: base.AddDate(0, 0, i),
			Open:        100, High: 100, Low: 100, Close: 100,
			Volume: 10, TickCount: 1, Complete: true,
		}
	}
	a := Analyze(candles, DefaultParams(), 100)
	if len(a.Support) != 0 || len(a.Resistance) != 0 {
		t.Errorf("flat series produced levels: %+v", a)
	}
}

func TestAnalyzeShortWindow(t *testing.T) {
	a := Analyze(nil, DefaultParams(), 100)
	if len(a.Support) != 0 || len(a.Resistance) != 0 {
		t.Errorf("empty window produced levels: %+v", a)
	}
}

func TestFindPeaksPlateau(t *testing.T) {
	// The plateau at 5 reports its first index only.
	v := []float64{1, 1, 5, 5, 5, 1, 1}
	got := findPeaks(v, 1, 0.5)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("peaks = %v, want [2]", got)
	}
}

func TestFindPeaksProminenceGate(t *testing.T) {
	// Two bumps: one tall, one shallow. Only the tall one clears a
	// prominence of 3.
	v := []float64{0, 1, 8, 1, 0, 1, 2, 1, 0}
	got := findPeaks(v, 1, 3)
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("peaks = %v, want [2]", got)
	}
}

func TestNearest(t *testing.T) {
	a := Analysis{
		Support: []model.Level{
			{Price: 95, Kind: model.LevelSupport, Strength: 0.9},
			{Price: 80, Kind: model.LevelSupport, Strength: 0.4},
		},
		Resistance: []model.Level{
			{Price: 105, Kind: model.LevelResistance, Strength: 0.5},
			{Price: 120, Kind: model.LevelResistance, Strength: 1.0},
		},
	}
	got := Nearest(a, 100, 2)
	if len(got) != 2 {
		t.Fatalf("got %d levels, want 2", len(got))
	}
	// 95 and 105 are equidistant; 95 wins on strength.
	if got[0].Price != 95 || got[1].Price != 105 {
		t.Errorf("order = %v, %v; want 95, 105", got[0].Price, got[1].Price)
	}
	if got[0].Distance != -5 || got[1].Distance != 5 {
		t.Errorf("distances = %v, %v; want -5, 5", got[0].Distance, got[1].Distance)
	}
	if math.Abs(got[0].DistancePct-(-0.05)) > 1e-12 {
		t.Errorf("distance_pct = %v, want -0.05", got[0].DistancePct)
	}
}

func TestPivotsStandard(t *testing.T) {
	prev := model.Candle{High: 110, Low: 90, Close: 100}
	got, err := Pivots(PivotStandard, prev)
	if err != nil {
		t.Fatal(err)
	}
	if got.PP != 100 {
		t.Errorf("PP = %v, want 100", got.PP)
	}
	if got.R1 != 110 || got.S1 != 90 {
		t.Errorf("R1/S1 = %v/%v, want 110/90", got.R1, got.S1)
	}
	if got.R2 != 120 || got.S2 != 80 {
		t.Errorf("R2/S2 = %v/%v, want 120/80", got.R2, got.S2)
	}
	if got.R3 != 130 || got.S3 != 70 {
		t.Errorf("R3/S3 = %v/%v, want 130/70", got.R3, got.S3)
	}
}

func TestPivotsWoodie(t *testing.T) {
	prev := model.Candle{High: 110, Low: 90, Close: 102}
	got, err := Pivots(PivotWoodie, prev)
	if err != nil {
		t.Fatal(err)
	}
	want := (110 + 90 + 2*102) / 4.0
	if got.PP != want {
		t.Errorf("PP = %v, want %v", got.PP, want)
	}
}

func TestPivotsUnknownMethod(t *testing.T) {
	if _, err := Pivots("camarilla", model.Candle{}); !errors.Is(err, ErrUnknownPivotMethod) {
		t.Errorf("err = %v, want ErrUnknownPivotMethod", err)
	}
}
