package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"candleflow/internal/history"
	"candleflow/internal/indicator"
	"candleflow/internal/levels"
	"candleflow/internal/markethours"
	"candleflow/internal/model"
	"candleflow/internal/timeframe"
	"candleflow/internal/validate"
)

// handleCalculate computes indicator series over a historical window.
func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	symbol, exchange, start, end, ok := s.validateCommon(w, req.Symbol, req.Exchange, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	interval, err := validate.Timeframe(req.Interval)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	candles, ok := s.fetch(w, r, symbol, exchange, interval, start, end)
	if !ok {
		return
	}
	block := s.computeBlock(candles, req.Indicators, req.IndicatorParams)

	writeJSON(w, http.StatusOK, calculateResponse{
		Symbol:      symbol,
		Exchange:    exchange,
		Interval:    interval,
		seriesBlock: block,
	})
}

// handleMultiTimeframe computes the same indicator set per timeframe.
func (s *Server) handleMultiTimeframe(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, "malformed JSON body: "+err.Error())
		return
	}
	symbol, exchange, start, end, ok := s.validateCommon(w, req.Symbol, req.Exchange, req.StartDate, req.EndDate)
	if !ok {
		return
	}
	intervals, err := validate.Timeframes(req.Intervals)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}

	resp := multiTimeframeResponse{
		Symbol:    symbol,
		Exchange:  exchange,
		Intervals: make(map[string]seriesBlock, len(intervals)),
	}
	for _, interval := range intervals {
		candles, ok := s.fetch(w, r, symbol, exchange, interval, start, end)
		if !ok {
			return
		}
		resp.Intervals[interval] = s.computeBlock(candles, req.Indicators, req.IndicatorParams)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleLatest returns the most recent value per indicator, computed over
// a trailing lookback window.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	symbol, err := validate.Symbol(mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	exchange, err := validate.Exchange(queryDefault(r, "exchange", "NSE"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	interval, err := validate.Timeframe(queryDefault(r, "interval", "5m"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	lookbackDays, ok := s.queryInt(w, r, "lookback_days", 30)
	if !ok {
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)
	candles, ok := s.fetch(w, r, symbol, exchange, interval, start, end)
	if !ok {
		return
	}

	names := splitList(queryDefault(r, "indicators", ""))
	if len(names) == 0 {
		names = indicator.Names()
	}
	results, failures := s.compute(candles, names, nil)

	resp := latestResponse{
		Symbol:     symbol,
		Exchange:   exchange,
		Interval:   interval,
		Indicators: make(map[string]map[string]*float64, len(results)),
		Errors:     failures,
	}
	if n := len(candles); n > 0 {
		resp.AsOf = candles[n-1].BucketStart
	}
	for _, res := range results {
		latest := res.Latest()
		block := make(map[string]*float64, len(latest))
		for name, v := range latest {
			block[name] = nullableScalar(v)
		}
		resp.Indicators[res.Name] = block
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleAvailable lists the indicator catalog.
func (s *Server) handleAvailable(w http.ResponseWriter, _ *http.Request) {
	all := indicator.All()
	out := make([]catalogEntry, 0, len(all))
	for _, m := range all {
		out = append(out, catalogEntry{
			Name:       m.Name,
			Category:   m.Category,
			Outputs:    m.Outputs,
			Parameters: map[string]float64(m.Defaults),
			MinPeriods: m.MinPeriods(m.Defaults),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"indicators": out,
		"count":      len(out),
	})
}

// handleSupportResistance runs swing-extrema clustering over a daily
// lookback window.
func (s *Server) handleSupportResistance(w http.ResponseWriter, r *http.Request) {
	symbol, exchange, interval, candles, ok := s.levelCandles(w, r)
	if !ok {
		return
	}
	p, ok := s.levelParams(w, r)
	if !ok {
		return
	}
	price := candles[len(candles)-1].Close
	a := levels.Analyze(candles, p, price)
	writeJSON(w, http.StatusOK, srResponse{
		Symbol:       symbol,
		Exchange:     exchange,
		Interval:     interval,
		Support:      a.Support,
		Resistance:   a.Resistance,
		Tolerance:    a.Tolerance,
		CurrentPrice: a.CurrentPrice,
	})
}

// handlePivots computes pivot levels from the last completed candle.
func (s *Server) handlePivots(w http.ResponseWriter, r *http.Request) {
	_, _, _, candles, ok := s.levelCandles(w, r)
	if !ok {
		return
	}
	method := queryDefault(r, "method", levels.PivotStandard)
	prev := candles[len(candles)-1]
	// Prefer the last sealed bar over a forming one.
	if !prev.Complete && len(candles) > 1 {
		prev = candles[len(candles)-2]
	}
	pl, err := levels.Pivots(method, prev)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pl)
}

// handleNearest returns the k levels closest to a reference price.
func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	symbol, _, _, candles, ok := s.levelCandles(w, r)
	if !ok {
		return
	}
	p, ok := s.levelParams(w, r)
	if !ok {
		return
	}
	count, ok := s.queryInt(w, r, "count", 5)
	if !ok {
		return
	}
	price := candles[len(candles)-1].Close
	if raw := queryDefault(r, "price", ""); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, kindBadRequest, "price must be a positive number")
			return
		}
		price = v
	}
	a := levels.Analyze(candles, p, price)
	writeJSON(w, http.StatusOK, nearestResponse{
		Symbol: symbol,
		Price:  price,
		Levels: levels.Nearest(a, price, count),
	})
}

// handleCandles is the historical pass-through.
func (s *Server) handleCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol, exchange, start, end, ok := s.validateCommon(w, q.Get("symbol"), queryDefault(r, "exchange", "NSE"), q.Get("start_date"), q.Get("end_date"))
	if !ok {
		return
	}
	interval, err := validate.Timeframe(queryDefault(r, "interval", "1d"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	candles, ok := s.fetch(w, r, symbol, exchange, interval, start, end)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, candlesResponse{
		Symbol:   symbol,
		Exchange: exchange,
		Interval: interval,
		Candles:  candles,
	})
}

func (s *Server) handleMetaTimeframes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"timeframes": timeframe.Canonical()})
}

func (s *Server) handleMetaExchanges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"exchanges": validate.Exchanges()})
}

func (s *Server) handleSystemStatus(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	body := map[string]any{
		"market":      markethours.StatusString(now),
		"market_open": markethours.IsMarketOpen(now),
		"server_time": now.UTC().Format(time.RFC3339),
	}
	if s.mgr != nil {
		body["stream"] = s.mgr.Snapshot()
	}
	if s.sessionCount != nil {
		body["sessions"] = s.sessionCount()
	}
	writeJSON(w, http.StatusOK, body)
}

// validateCommon checks the symbol, exchange, and date range shared by
// most endpoints, writing the error response itself on failure.
func (s *Server) validateCommon(w http.ResponseWriter, rawSymbol, rawExchange, rawStart, rawEnd string) (symbol, exchange string, start, end time.Time, ok bool) {
	symbol, err := validate.Symbol(rawSymbol)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	exchange, err = validate.Exchange(rawExchange)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	start, end, err = validate.ParseDateRange(rawStart, rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	return symbol, exchange, start, end, true
}

// fetch pulls candles through the historical source with retry, mapping
// failures to the REST error taxonomy.
func (s *Server) fetch(w http.ResponseWriter, r *http.Request, symbol, exchange, interval string, start, end time.Time) ([]model.Candle, bool) {
	candles, err := history.Fetch(r.Context(), s.src, symbol, exchange, interval, start, end)
	if err != nil {
		s.noteHistorical("error")
		switch {
		case errors.Is(err, history.ErrInvalidRequest):
			writeError(w, http.StatusBadRequest, kindHistInvalid, err.Error())
		case errors.Is(err, history.ErrUnavailable):
			writeError(w, http.StatusServiceUnavailable, kindHistUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, kindInternal, err.Error())
		}
		return nil, false
	}
	s.noteHistorical("ok")
	if len(candles) == 0 {
		writeError(w, http.StatusBadRequest, kindBadRequest, "no candles in range")
		return nil, false
	}
	return candles, true
}

func (s *Server) noteHistorical(outcome string) {
	if s.metrics != nil {
		s.metrics.HistoricalCalls.WithLabelValues(outcome).Inc()
	}
}

// compute runs the engine over a candle window and classifies failures.
func (s *Server) compute(candles []model.Candle, names []string, params map[string]map[string]float64) ([]indicator.Result, []indicatorError) {
	reqs := make([]indicator.Request, 0, len(names))
	for _, name := range names {
		reqs = append(reqs, indicator.Request{Name: name, Params: params[name]})
	}
	win := indicator.FromCandles(candles)

	start := time.Now()
	results, failures := indicator.ComputeAll(win, reqs)
	if s.metrics != nil {
		s.metrics.IndicatorCompute.Observe(time.Since(start).Seconds())
	}

	var errs []indicatorError
	for name, err := range failures {
		kind := kindBadRequest
		switch {
		case errors.Is(err, indicator.ErrUnknown):
			kind = kindUnknownIndicator
		case errors.Is(err, validate.ErrInvalidIndicatorParam):
			kind = kindInvalidParam
		}
		errs = append(errs, indicatorError{Indicator: name, Message: err.Error(), Kind: kind})
	}
	return results, errs
}

// computeBlock renders one interval's series response.
func (s *Server) computeBlock(candles []model.Candle, names []string, params map[string]map[string]float64) seriesBlock {
	if len(names) == 0 {
		names = indicator.Names()
	}
	results, errs := s.compute(candles, names, params)

	ts := make([]time.Time, len(candles))
	for i, c := range candles {
		ts[i] = c.BucketStart
	}
	return seriesBlock{
		Timestamps: ts,
		Candles:    len(candles),
		Indicators: resultsToSeries(results),
		Errors:     errs,
	}
}

// levelCandles fetches the lookback window shared by the
// support/resistance endpoints.
func (s *Server) levelCandles(w http.ResponseWriter, r *http.Request) (symbol, exchange, interval string, candles []model.Candle, ok bool) {
	symbol, err := validate.Symbol(mux.Vars(r)["symbol"])
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	exchange, err = validate.Exchange(queryDefault(r, "exchange", "NSE"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	interval, err = validate.Timeframe(queryDefault(r, "interval", "1d"))
	if err != nil {
		writeError(w, http.StatusBadRequest, kindBadRequest, err.Error())
		return
	}
	lookbackDays, fine := s.queryInt(w, r, "lookback_days", 90)
	if !fine {
		return
	}
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)
	candles, fine = s.fetch(w, r, symbol, exchange, interval, start, end)
	if !fine {
		return
	}
	return symbol, exchange, interval, candles, true
}

// levelParams reads the clustering tunables from the query string.
func (s *Server) levelParams(w http.ResponseWriter, r *http.Request) (levels.Params, bool) {
	p := levels.DefaultParams()
	ints := map[string]*int{
		"max_levels": &p.MaxLevels,
		"window_w":   &p.WindowW,
		"atr_period": &p.ATRPeriod,
	}
	for key, dst := range ints {
		v, ok := s.queryInt(w, r, key, *dst)
		if !ok {
			return p, false
		}
		*dst = v
	}
	floats := map[string]*float64{
		"prominence_mult": &p.ProminenceMult,
		"half_life_bars":  &p.HalfLifeBars,
		"atr_mult":        &p.ATRMult,
	}
	for key, dst := range floats {
		raw := queryDefault(r, key, "")
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeError(w, http.StatusBadRequest, kindBadRequest, key+" must be a positive number")
			return p, false
		}
		*dst = v
	}
	return p, true
}

// queryInt parses a positive integer query parameter with a default,
// writing a bad_request response on failure.
func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := queryDefault(r, key, "")
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		writeError(w, http.StatusBadRequest, kindBadRequest, key+" must be a positive integer")
		return 0, false
	}
	return v, true
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
