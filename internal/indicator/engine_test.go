package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"candleflow/internal/model"
	"candleflow/internal/validate"
)

// windowFromCloses builds a synthetic window where high/low straddle the
// close by a fixed band and volume is constant.
func windowFromCloses(closes []float64) Window {
	base := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	candles := make([]model.Candle, len(closes))
	for i, c := range closes {
		candles[i] = model.Candle{
			Symbol: "RELIANCE", Timeframe: "1m",
			BucketStart: base.Add(time.Duration(i) * time.Minute),
			Open:        c, High: c + 1, Low: c - 1, Close: c,
			Volume: 100, TickCount: 1, Complete: true,
		}
	}
	return FromCandles(candles)
}

func rampCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		// Deterministic zig-zag with drift so momentum series stay interesting.
		out[i] = 100 + 0.5*float64(i) + 3*math.Sin(float64(i)/3)
	}
	return out
}

func TestSMAWarmupAndValues(t *testing.T) {
	w := windowFromCloses([]float64{1, 2, 3, 4, 5})
	r, err := Compute(w, Request{Name: "sma", Params: map[string]float64{"period": 3}})
	if err != nil {
		t.Fatal(err)
	}
	s := r.Series["sma"]
	for i := 0; i < 2; i++ {
		if !math.IsNaN(s[i]) {
			t.Errorf("sma[%d] = %v, want NaN during warm-up", i, s[i])
		}
	}
	want := []float64{2, 3, 4}
	for i, v := range want {
		if got := s[i+2]; math.Abs(got-v) > 1e-9 {
			t.Errorf("sma[%d] = %v, want %v", i+2, got, v)
		}
	}
}

// wilderRSI is an independent oracle: seed with the simple mean of the
// first n gains/losses, then recursive Wilder smoothing.
func wilderRSI(closes []float64, n int) float64 {
	var gain, loss float64
	for i := 1; i <= n; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	gain /= float64(n)
	loss /= float64(n)
	for i := n + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		gain = (gain*float64(n-1) + g) / float64(n)
		loss = (loss*float64(n-1) + l) / float64(n)
	}
	if loss == 0 {
		return 100
	}
	return 100 - 100/(1+gain/loss)
}

func TestRSIAgainstOracle(t *testing.T) {
	closes := rampCloses(60)
	w := windowFromCloses(closes)

	for _, period := range []int{7, 14} {
		r, err := Compute(w, Request{
			Name:   "rsi",
			Params: map[string]float64{"period": float64(period)},
		})
		if err != nil {
			t.Fatal(err)
		}
		got := r.Series["rsi"][len(closes)-1]
		want := wilderRSI(closes, period)
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("rsi(period=%d) = %v, want %v", period, got, want)
		}
	}
}

func TestRSIPeriodOverrideChangesOutput(t *testing.T) {
	w := windowFromCloses(rampCloses(60))
	def, err := Compute(w, Request{Name: "rsi"})
	if err != nil {
		t.Fatal(err)
	}
	short, err := Compute(w, Request{Name: "rsi", Params: map[string]float64{"period": 7}})
	if err != nil {
		t.Fatal(err)
	}
	a := def.Series["rsi"][59]
	b := short.Series["rsi"][59]
	if a == b {
		t.Errorf("period override had no effect: both %v", a)
	}
	if short.Params["period"] != 7 || def.Params["period"] != 14 {
		t.Errorf("resolved params wrong: def=%v short=%v", def.Params, short.Params)
	}
}

func TestMACDOutputs(t *testing.T) {
	w := windowFromCloses(rampCloses(80))
	r, err := Compute(w, Request{Name: "macd"})
	if err != nil {
		t.Fatal(err)
	}
	for _, out := range []string{"macd", "macd_signal", "macd_diff"} {
		s, ok := r.Series[out]
		if !ok {
			t.Fatalf("missing output %q", out)
		}
		if len(s) != w.Len() {
			t.Fatalf("%s length = %d, want %d", out, len(s), w.Len())
		}
	}
	last := w.Len() - 1
	diff := r.Series["macd"][last] - r.Series["macd_signal"][last]
	if math.Abs(diff-r.Series["macd_diff"][last]) > 1e-9 {
		t.Errorf("macd_diff = %v, want macd-signal = %v", r.Series["macd_diff"][last], diff)
	}
}

func TestBollingerOracle(t *testing.T) {
	closes := []float64{10, 11, 12, 13, 14}
	w := windowFromCloses(closes)
	r, err := Compute(w, Request{Name: "bollinger", Params: map[string]float64{"period": 5}})
	if err != nil {
		t.Fatal(err)
	}
	mid := r.Series["bb_mid"][4]
	if math.Abs(mid-12) > 1e-9 {
		t.Errorf("bb_mid = %v, want 12", mid)
	}
	// Population stddev of 10..14 is sqrt(2).
	wantHigh := 12 + 2*math.Sqrt2
	if got := r.Series["bb_high"][4]; math.Abs(got-wantHigh) > 1e-9 {
		t.Errorf("bb_high = %v, want %v", got, wantHigh)
	}
}

func TestOBVOracle(t *testing.T) {
	w := windowFromCloses([]float64{10, 11, 10.5, 10.5, 12})
	r, err := Compute(w, Request{Name: "obv"})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{100, 200, 100, 100, 200}
	for i, v := range want {
		if got := r.Series["obv"][i]; got != v {
			t.Errorf("obv[%d] = %v, want %v", i, got, v)
		}
	}
}

func TestUnknownIndicator(t *testing.T) {
	w := windowFromCloses(rampCloses(10))
	_, err := Compute(w, Request{Name: "supertrend"})
	if !errors.Is(err, ErrUnknown) {
		t.Errorf("err = %v, want ErrUnknown", err)
	}
}

func TestInvalidParams(t *testing.T) {
	w := windowFromCloses(rampCloses(30))
	cases := []Request{
		{Name: "rsi", Params: map[string]float64{"period": 0}},
		{Name: "rsi", Params: map[string]float64{"period": 2.5}},
		{Name: "bollinger", Params: map[string]float64{"std_dev": -1}},
	}
	for _, req := range cases {
		if _, err := Compute(w, req); !errors.Is(err, validate.ErrInvalidIndicatorParam) {
			t.Errorf("%s %v: err = %v, want ErrInvalidIndicatorParam", req.Name, req.Params, err)
		}
	}

	// Names outside the schema are ignored, not rejected.
	r, err := Compute(w, Request{Name: "rsi", Params: map[string]float64{"lookback": 5}})
	if err != nil {
		t.Fatalf("unknown param name rejected: %v", err)
	}
	if r.Params["period"] != 14 {
		t.Errorf("defaults disturbed by ignored param: %v", r.Params)
	}
}

func TestComputeAllIsolatesFailures(t *testing.T) {
	w := windowFromCloses(rampCloses(60))
	reqs := []Request{
		{Name: "rsi"},
		{Name: "nope"},
		{Name: "sma", Params: map[string]float64{"period": -1}},
		{Name: "atr"},
	}
	results, errs := ComputeAll(w, reqs)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Name != "rsi" || results[1].Name != "atr" {
		t.Errorf("result order = %s, %s", results[0].Name, results[1].Name)
	}
	if !errors.Is(errs["nope"], ErrUnknown) {
		t.Errorf("errs[nope] = %v", errs["nope"])
	}
	if !errors.Is(errs["sma"], validate.ErrInvalidIndicatorParam) {
		t.Errorf("errs[sma] = %v", errs["sma"])
	}
}

func TestComputeIsPure(t *testing.T) {
	closes := rampCloses(60)
	w := windowFromCloses(closes)
	snapshot := append([]float64(nil), w.Close...)

	r1, _ := Compute(w, Request{Name: "adx"})
	r2, _ := Compute(w, Request{Name: "adx"})
	for name, s1 := range r1.Series {
		s2 := r2.Series[name]
		for i := range s1 {
			both := math.IsNaN(s1[i]) && math.IsNaN(s2[i])
			if !both && s1[i] != s2[i] {
				t.Fatalf("%s[%d] differs across runs: %v vs %v", name, i, s1[i], s2[i])
			}
		}
	}
	for i := range snapshot {
		if w.Close[i] != snapshot[i] {
			t.Fatalf("window mutated at %d", i)
		}
	}
}

func TestCatalogConsistency(t *testing.T) {
	w := windowFromCloses(rampCloses(200))
	for _, m := range All() {
		r, err := Compute(w, Request{Name: m.Name})
		if err != nil {
			t.Fatalf("%s: %v", m.Name, err)
		}
		if len(r.Series) != len(m.Outputs) {
			t.Errorf("%s: %d series, catalog lists %d outputs", m.Name, len(r.Series), len(m.Outputs))
		}
		for _, out := range m.Outputs {
			s, ok := r.Series[out]
			if !ok {
				t.Errorf("%s: missing declared output %q", m.Name, out)
				continue
			}
			if len(s) != w.Len() {
				t.Errorf("%s.%s: length %d, want %d", m.Name, out, len(s), w.Len())
			}
		}
		if m.MinPeriods(m.Defaults) < 1 {
			t.Errorf("%s: MinPeriods < 1", m.Name)
		}
	}
}

func TestLatest(t *testing.T) {
	w := windowFromCloses(rampCloses(5))
	r, err := Compute(w, Request{Name: "rsi"}) // window shorter than warm-up
	if err != nil {
		t.Fatal(err)
	}
	latest := r.Latest()
	if v, ok := latest["rsi"]; !ok || !math.IsNaN(v) {
		t.Errorf("latest rsi = %v (ok=%v), want NaN sentinel", v, ok)
	}
}
