// Package levels derives support and resistance levels from a candle
// window: ATR-scaled swing-extrema detection followed by price
// clustering with recency and volume weighted strength.
package levels

import (
	"math"
	"sort"
	"time"

	"candleflow/internal/model"
)

// Params tunes the detection and clustering passes.
type Params struct {
	// WindowW is the peak-detection radius in bars.
	WindowW int
	// ProminenceMult scales ATR into the minimum peak prominence.
	ProminenceMult float64
	// HalfLifeBars controls the recency decay of extremum weights.
	HalfLifeBars float64
	// ATRMult scales ATR into the cluster merge tolerance.
	ATRMult float64
	// MaxLevels caps the returned levels per kind.
	MaxLevels int
	// ATRPeriod is the true-range averaging span.
	ATRPeriod int
}

// DefaultParams returns the standard tuning.
func DefaultParams() Params {
	return Params{
		WindowW:        3,
		ProminenceMult: 0.5,
		HalfLifeBars:   200,
		ATRMult:        1.0,
		MaxLevels:      10,
		ATRPeriod:      14,
	}
}

func (p *Params) defaults() {
	d := DefaultParams()
	if p.WindowW <= 0 {
		p.WindowW = d.WindowW
	}
	if p.ProminenceMult <= 0 {
		p.ProminenceMult = d.ProminenceMult
	}
	if p.HalfLifeBars <= 0 {
		p.HalfLifeBars = d.HalfLifeBars
	}
	if p.ATRMult <= 0 {
		p.ATRMult = d.ATRMult
	}
	if p.MaxLevels <= 0 {
		p.MaxLevels = d.MaxLevels
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = d.ATRPeriod
	}
}

// Analysis is the full output of one run.
type Analysis struct {
	Support      []model.Level `json:"support"`
	Resistance   []model.Level `json:"resistance"`
	Tolerance    float64       `json:"tolerance"`
	CurrentPrice float64       `json:"current_price"`
}

// extremum is one detected swing point.
type extremum struct {
	index  int
	price  float64
	ts     time.Time
	volume float64
}

// Analyze runs the full pipeline over a time-ordered candle series.
// A window too short or too flat to produce a meaningful ATR yields
// empty level lists.
func Analyze(candles []model.Candle, p Params, currentPrice float64) Analysis {
	p.defaults()
	out := Analysis{CurrentPrice: currentPrice}

	n := len(candles)
	if n < 2 {
		return out
	}
	atr := lastATR(candles, p.ATRPeriod)
	if atr <= 0 || math.IsNaN(atr) {
		return out
	}
	out.Tolerance = p.ATRMult * atr
	prominence := p.ProminenceMult * atr

	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
	}

	peaks := findPeaks(highs, p.WindowW, prominence)
	inverted := make([]float64, n)
	for i, v := range lows {
		inverted[i] = -v
	}
	valleys := findPeaks(inverted, p.WindowW, prominence)

	resEx := make([]extremum, 0, len(peaks))
	for _, i := range peaks {
		resEx = append(resEx, extremum{
			index: i, price: candles[i].High,
			ts: candles[i].BucketStart, volume: candles[i].Volume,
		})
	}
	supEx := make([]extremum, 0, len(valleys))
	for _, i := range valleys {
		supEx = append(supEx, extremum{
			index: i, price: candles[i].Low,
			ts: candles[i].BucketStart, volume: candles[i].Volume,
		})
	}

	// Supports and resistances cluster independently.
	res := cluster(resEx, out.Tolerance, n, p.HalfLifeBars, model.LevelResistance)
	sup := cluster(supEx, out.Tolerance, n, p.HalfLifeBars, model.LevelSupport)

	// Strength normalizes against the strongest level of either kind.
	var maxRaw float64
	for _, l := range res {
		maxRaw = math.Max(maxRaw, l.Strength)
	}
	for _, l := range sup {
		maxRaw = math.Max(maxRaw, l.Strength)
	}
	if maxRaw > 0 {
		normalize(res, maxRaw)
		normalize(sup, maxRaw)
	}

	out.Resistance = selectTop(res, p.MaxLevels)
	out.Support = selectTop(sup, p.MaxLevels)
	return out
}

// lastATR is the trailing simple mean of true range over period bars.
func lastATR(candles []model.Candle, period int) float64 {
	n := len(candles)
	if period > n {
		period = n
	}
	var sum float64
	for i := n - period; i < n; i++ {
		hl := candles[i].High - candles[i].Low
		tr := hl
		if i > 0 {
			prev := candles[i-1].Close
			tr = math.Max(hl, math.Max(
				math.Abs(candles[i].High-prev),
				math.Abs(candles[i].Low-prev),
			))
		}
		sum += tr
	}
	return sum / float64(period)
}

// findPeaks returns indices that dominate every neighbor within radius w
// and rise at least prominence above the higher of the two flanking
// valley floors. Plateaus report their first index only.
func findPeaks(v []float64, w int, prominence float64) []int {
	var out []int
	n := len(v)
	for i := 0; i < n; i++ {
		if !dominates(v, i, w) {
			continue
		}
		if peakProminence(v, i) < prominence {
			continue
		}
		out = append(out, i)
	}
	return out
}

func dominates(v []float64, i, w int) bool {
	lo := i - w
	if lo < 0 {
		lo = 0
	}
	hi := i + w
	if hi > len(v)-1 {
		hi = len(v) - 1
	}
	for j := lo; j < i; j++ {
		if v[j] >= v[i] {
			return false
		}
	}
	for j := i + 1; j <= hi; j++ {
		// Strict on the left, non-strict on the right keeps one index
		// per plateau.
		if v[j] > v[i] {
			return false
		}
	}
	// Interior plateau members are rejected by the strict left check;
	// a plateau starting at 0 keeps index 0.
	return true
}

// peakProminence walks outward to the nearest higher point on each side
// and measures the rise above the deeper of the two valley minima found
// on the way. An unbounded side uses the series edge.
func peakProminence(v []float64, i int) float64 {
	leftMin := v[i]
	for j := i - 1; j >= 0; j-- {
		if v[j] > v[i] {
			break
		}
		if v[j] < leftMin {
			leftMin = v[j]
		}
	}
	rightMin := v[i]
	for j := i + 1; j < len(v); j++ {
		if v[j] > v[i] {
			break
		}
		if v[j] < rightMin {
			rightMin = v[j]
		}
	}
	return v[i] - math.Max(leftMin, rightMin)
}

// cluster merges price-sorted extrema whose successive prices fall
// within tol, producing raw-strength levels.
func cluster(ex []extremum, tol float64, n int, halfLife float64, kind string) []model.Level {
	if len(ex) == 0 {
		return nil
	}
	sorted := append([]extremum(nil), ex...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].price < sorted[b].price })

	var out []model.Level
	run := []extremum{sorted[0]}
	flush := func() {
		out = append(out, mergeRun(run, n, halfLife, kind))
	}
	for _, e := range sorted[1:] {
		if e.price-run[len(run)-1].price <= tol {
			run = append(run, e)
			continue
		}
		flush()
		run = []extremum{e}
	}
	flush()
	return out
}

// mergeRun collapses one cluster into a level. Strength holds the raw
// weight sum until normalization.
func mergeRun(run []extremum, n int, halfLife float64, kind string) model.Level {
	var sumW, sumWP float64
	var last time.Time
	for _, e := range run {
		recency := math.Pow(0.5, float64(n-1-e.index)/halfLife)
		w := recency * e.volume
		sumW += w
		sumWP += w * e.price
		if e.ts.After(last) {
			last = e.ts
		}
	}
	price := run[0].price
	if sumW > 0 {
		price = sumWP / sumW
	}
	return model.Level{
		Price:     price,
		Kind:      kind,
		Strength:  sumW,
		Touches:   len(run),
		LastTouch: last,
	}
}

func normalize(levels []model.Level, maxRaw float64) {
	for i := range levels {
		s := levels[i].Strength / maxRaw
		if s > 1 {
			s = 1
		}
		if s < 0 {
			s = 0
		}
		levels[i].Strength = s
	}
}

func selectTop(levels []model.Level, max int) []model.Level {
	sort.Slice(levels, func(a, b int) bool {
		return levels[a].Strength > levels[b].Strength
	})
	if len(levels) > max {
		levels = levels[:max]
	}
	return levels
}

// Nearest returns the k levels closest to price across both kinds, each
// annotated with signed distance. Equidistant levels rank by strength.
func Nearest(a Analysis, price float64, k int) []model.NearestLevel {
	all := make([]model.NearestLevel, 0, len(a.Support)+len(a.Resistance))
	for _, l := range append(append([]model.Level(nil), a.Support...), a.Resistance...) {
		d := l.Price - price
		nl := model.NearestLevel{Level: l, Distance: d}
		if price != 0 {
			nl.DistancePct = d / price
		}
		all = append(all, nl)
	}
	sort.Slice(all, func(i, j int) bool {
		di, dj := math.Abs(all[i].Distance), math.Abs(all[j].Distance)
		if di != dj {
			return di < dj
		}
		return all[i].Strength > all[j].Strength
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}
