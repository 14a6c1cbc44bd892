package indicator

import "sort"

// Params maps parameter names to values. Integer-valued parameters
// (periods, windows) are stored as float64 and truncated on read.
type Params map[string]float64

func (p Params) period(name string) int    { return int(p[name]) }
func (p Params) value(name string) float64 { return p[name] }

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Categories.
const (
	CategoryTrend      = "trend"
	CategoryMomentum   = "momentum"
	CategoryVolatility = "volatility"
	CategoryVolume     = "volume"
	CategoryReturns    = "returns"
)

// Meta describes one catalog entry: its output series, parameter
// defaults and the minimum bar count before the first non-NaN value.
type Meta struct {
	Name       string
	Category   string
	Outputs    []string
	Defaults   Params
	MinPeriods func(Params) int

	compute func(Window, Params) map[string][]float64
}

func pd(name string) func(Params) int {
	return func(p Params) int { return p.period(name) }
}

var catalog = map[string]Meta{
	// Trend.
	"sma": {Category: CategoryTrend, Outputs: []string{"sma"},
		Defaults: Params{"period": 20}, MinPeriods: pd("period"), compute: computeSMA},
	"ema": {Category: CategoryTrend, Outputs: []string{"ema"},
		Defaults: Params{"period": 20}, MinPeriods: pd("period"), compute: computeEMA},
	"wma": {Category: CategoryTrend, Outputs: []string{"wma"},
		Defaults: Params{"period": 9}, MinPeriods: pd("period"), compute: computeWMA},
	"macd": {Category: CategoryTrend, Outputs: []string{"macd", "macd_signal", "macd_diff"},
		Defaults: Params{"fast_period": 12, "slow_period": 26, "signal_period": 9},
		MinPeriods: func(p Params) int {
			return p.period("slow_period") + p.period("signal_period") - 1
		}, compute: computeMACD},
	"adx": {Category: CategoryTrend, Outputs: []string{"adx", "adx_pos", "adx_neg"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return 2 * p.period("period") },
		compute:    computeADX},
	"vortex": {Category: CategoryTrend, Outputs: []string{"vortex_pos", "vortex_neg"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeVortex},
	"trix": {Category: CategoryTrend, Outputs: []string{"trix"},
		Defaults: Params{"period": 15},
		MinPeriods: func(p Params) int { return 3*(p.period("period")-1) + 2 },
		compute:    computeTRIX},
	"mass_index": {Category: CategoryTrend, Outputs: []string{"mass_index"},
		Defaults: Params{"fast_period": 9, "slow_period": 25},
		MinPeriods: func(p Params) int {
			return 2*(p.period("fast_period")-1) + p.period("slow_period")
		}, compute: computeMassIndex},
	"cci": {Category: CategoryTrend, Outputs: []string{"cci"},
		Defaults: Params{"period": 20, "constant": 0.015}, MinPeriods: pd("period"),
		compute: computeCCI},
	"dpo": {Category: CategoryTrend, Outputs: []string{"dpo"},
		Defaults: Params{"period": 20},
		MinPeriods: func(p Params) int { return p.period("period") + p.period("period")/2 + 1 },
		compute:    computeDPO},
	"kst": {Category: CategoryTrend, Outputs: []string{"kst", "kst_signal"},
		Defaults: Params{
			"roc1": 10, "roc2": 15, "roc3": 20, "roc4": 30,
			"sma1": 10, "sma2": 10, "sma3": 10, "sma4": 15,
			"signal_period": 9,
		},
		MinPeriods: func(p Params) int {
			return p.period("roc4") + p.period("sma4") + p.period("signal_period") - 1
		}, compute: computeKST},
	"ichimoku": {Category: CategoryTrend,
		Outputs:  []string{"ichimoku_conv", "ichimoku_base", "ichimoku_a", "ichimoku_b"},
		Defaults: Params{"conversion_period": 9, "base_period": 26, "span_b_period": 52},
		MinPeriods: pd("span_b_period"), compute: computeIchimoku},
	"psar": {Category: CategoryTrend, Outputs: []string{"psar", "psar_up", "psar_down"},
		Defaults:   Params{"step": 0.02, "max_step": 0.2},
		MinPeriods: func(Params) int { return 2 }, compute: computePSAR},
	"stc": {Category: CategoryTrend, Outputs: []string{"stc"},
		Defaults: Params{
			"fast_period": 23, "slow_period": 50, "cycle": 10,
			"smooth1": 3, "smooth2": 3,
		},
		MinPeriods: func(p Params) int {
			return p.period("slow_period") + 2*p.period("cycle") + p.period("smooth1") + p.period("smooth2")
		}, compute: computeSTC},
	"aroon": {Category: CategoryTrend,
		Outputs:  []string{"aroon_up", "aroon_down", "aroon_indicator"},
		Defaults: Params{"period": 25}, MinPeriods: pd("period"), compute: computeAroon},

	// Momentum.
	"rsi": {Category: CategoryMomentum, Outputs: []string{"rsi"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeRSI},
	"stochrsi": {Category: CategoryMomentum,
		Outputs:  []string{"stochrsi", "stochrsi_k", "stochrsi_d"},
		Defaults: Params{"period": 14, "smooth_k": 3, "smooth_d": 3},
		MinPeriods: func(p Params) int {
			return 2*p.period("period") + p.period("smooth_k") + p.period("smooth_d")
		}, compute: computeStochRSI},
	"tsi": {Category: CategoryMomentum, Outputs: []string{"tsi"},
		Defaults: Params{"slow_period": 25, "fast_period": 13},
		MinPeriods: func(p Params) int {
			return p.period("slow_period") + p.period("fast_period")
		}, compute: computeTSI},
	"uo": {Category: CategoryMomentum, Outputs: []string{"uo"},
		Defaults:   Params{"short_period": 7, "medium_period": 14, "long_period": 28},
		MinPeriods: func(p Params) int { return p.period("long_period") + 1 },
		compute:    computeUO},
	"stoch": {Category: CategoryMomentum, Outputs: []string{"stoch_k", "stoch_d"},
		Defaults: Params{"period": 14, "smooth_period": 3},
		MinPeriods: func(p Params) int {
			return p.period("period") + p.period("smooth_period") - 1
		}, compute: computeStoch},
	"wr": {Category: CategoryMomentum, Outputs: []string{"wr"},
		Defaults: Params{"period": 14}, MinPeriods: pd("period"), compute: computeWilliamsR},
	"ao": {Category: CategoryMomentum, Outputs: []string{"ao"},
		Defaults: Params{"fast_period": 5, "slow_period": 34},
		MinPeriods: pd("slow_period"), compute: computeAO},
	"kama": {Category: CategoryMomentum, Outputs: []string{"kama"},
		Defaults:   Params{"period": 10, "fast_period": 2, "slow_period": 30},
		MinPeriods: pd("period"), compute: computeKAMA},
	"roc": {Category: CategoryMomentum, Outputs: []string{"roc"},
		Defaults: Params{"period": 12},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeROC},
	"ppo": {Category: CategoryMomentum, Outputs: []string{"ppo", "ppo_signal", "ppo_hist"},
		Defaults: Params{"fast_period": 12, "slow_period": 26, "signal_period": 9},
		MinPeriods: func(p Params) int {
			return p.period("slow_period") + p.period("signal_period") - 1
		}, compute: computePPO},
	"pvo": {Category: CategoryMomentum, Outputs: []string{"pvo", "pvo_signal", "pvo_hist"},
		Defaults: Params{"fast_period": 12, "slow_period": 26, "signal_period": 9},
		MinPeriods: func(p Params) int {
			return p.period("slow_period") + p.period("signal_period") - 1
		}, compute: computePVO},

	// Volatility.
	"atr": {Category: CategoryVolatility, Outputs: []string{"atr"},
		Defaults: Params{"period": 14}, MinPeriods: pd("period"), compute: computeATR},
	"bollinger": {Category: CategoryVolatility,
		Outputs:  []string{"bb_high", "bb_mid", "bb_low", "bb_width", "bb_pct_b"},
		Defaults: Params{"period": 20, "std_dev": 2},
		MinPeriods: pd("period"), compute: computeBollinger},
	"keltner": {Category: CategoryVolatility,
		Outputs:  []string{"kc_high", "kc_mid", "kc_low", "kc_width", "kc_pct_b"},
		Defaults: Params{"period": 20, "atr_period": 10, "multiplier": 2},
		MinPeriods: pd("period"), compute: computeKeltner},
	"donchian": {Category: CategoryVolatility,
		Outputs:  []string{"dc_high", "dc_mid", "dc_low", "dc_width", "dc_pct_b"},
		Defaults: Params{"period": 20}, MinPeriods: pd("period"), compute: computeDonchian},
	"ui": {Category: CategoryVolatility, Outputs: []string{"ui"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return 2*p.period("period") - 1 },
		compute:    computeUlcer},

	// Volume.
	"mfi": {Category: CategoryVolume, Outputs: []string{"mfi"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeMFI},
	"adi": {Category: CategoryVolume, Outputs: []string{"adi"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 1 }, compute: computeADI},
	"obv": {Category: CategoryVolume, Outputs: []string{"obv"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 1 }, compute: computeOBV},
	"cmf": {Category: CategoryVolume, Outputs: []string{"cmf"},
		Defaults: Params{"period": 20}, MinPeriods: pd("period"), compute: computeCMF},
	"fi": {Category: CategoryVolume, Outputs: []string{"fi"},
		Defaults: Params{"period": 13},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeForceIndex},
	"eom": {Category: CategoryVolume, Outputs: []string{"eom", "eom_sma"},
		Defaults: Params{"period": 14},
		MinPeriods: func(p Params) int { return p.period("period") + 1 },
		compute:    computeEoM},
	"vpt": {Category: CategoryVolume, Outputs: []string{"vpt"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 2 }, compute: computeVPT},
	"nvi": {Category: CategoryVolume, Outputs: []string{"nvi"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 1 }, compute: computeNVI},
	"vwap": {Category: CategoryVolume, Outputs: []string{"vwap"},
		Defaults: Params{"period": 14}, MinPeriods: pd("period"), compute: computeVWAPRolling},

	// Returns.
	"dr": {Category: CategoryReturns, Outputs: []string{"dr"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 2 }, compute: computeDR},
	"dlr": {Category: CategoryReturns, Outputs: []string{"dlr"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 2 }, compute: computeDLR},
	"cr": {Category: CategoryReturns, Outputs: []string{"cr"},
		Defaults: Params{}, MinPeriods: func(Params) int { return 1 }, compute: computeCR},
}

func init() {
	for name, m := range catalog {
		m.Name = name
		catalog[name] = m
	}
}

// Lookup returns the catalog entry for name.
func Lookup(name string) (Meta, bool) {
	m, ok := catalog[name]
	return m, ok
}

// Names returns all catalog names, sorted.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for name := range catalog {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// All returns catalog entries sorted by name.
func All() []Meta {
	out := make([]Meta, 0, len(catalog))
	for _, name := range Names() {
		out = append(out, catalog[name])
	}
	return out
}
