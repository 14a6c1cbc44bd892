// Package indicator computes technical indicator series over candle
// windows. All computations are pure: the same window and parameters
// always yield the same output, and positions with insufficient history
// hold NaN.
package indicator

import (
	"errors"
	"fmt"

	"candleflow/internal/validate"
)

// ErrUnknown is returned for indicator names absent from the catalog.
var ErrUnknown = errors.New("unknown indicator")

// Request names one indicator with optional parameter overrides.
// Omitted parameters take catalog defaults.
type Request struct {
	Name   string
	Params map[string]float64
}

// Result holds one indicator's computed output series, keyed by output
// name. Every series has the window's length.
type Result struct {
	Name   string
	Params Params
	Series map[string][]float64
}

// resolveParams merges overrides onto the catalog defaults. Parameter
// names outside the indicator's schema are ignored so that callers can
// send shared parameter maps across indicators; known names with
// invalid values are rejected.
func resolveParams(m Meta, overrides map[string]float64) (Params, error) {
	p := m.Defaults.clone()
	for name, v := range overrides {
		if _, ok := m.Defaults[name]; !ok {
			continue
		}
		if err := validate.IndicatorParam(name, v); err != nil {
			return nil, err
		}
		p[name] = v
	}
	return p, nil
}

// Compute evaluates a single indicator over the window.
func Compute(w Window, req Request) (Result, error) {
	m, ok := Lookup(req.Name)
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknown, req.Name)
	}
	p, err := resolveParams(m, req.Params)
	if err != nil {
		return Result{}, err
	}
	return Result{Name: req.Name, Params: p, Series: m.compute(w, p)}, nil
}

// ComputeAll evaluates each request independently. A failing request
// records its error without affecting the others; results keep the
// request order, skipping failures.
func ComputeAll(w Window, reqs []Request) ([]Result, map[string]error) {
	results := make([]Result, 0, len(reqs))
	errs := make(map[string]error)
	for _, req := range reqs {
		r, err := Compute(w, req)
		if err != nil {
			errs[req.Name] = err
			continue
		}
		results = append(results, r)
	}
	return results, errs
}

// Latest returns the final value of each output series in r.
// NaN means the indicator is still warming up.
func (r Result) Latest() map[string]float64 {
	out := make(map[string]float64, len(r.Series))
	for name, s := range r.Series {
		if len(s) == 0 {
			continue
		}
		out[name] = s[len(s)-1]
	}
	return out
}
