// Package history adapts an external candle archive for on-demand
// indicator and level computations. Values fetched here never feed the
// live aggregation path.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"candleflow/internal/model"
	"candleflow/internal/timeframe"
	"candleflow/pkg/smartconnect"
)

// Failure classes for historical fetches.
var (
	// ErrUnavailable marks transient upstream failures; callers may retry.
	ErrUnavailable = errors.New("historical source unavailable")
	// ErrInvalidRequest marks permanent failures; retrying cannot help.
	ErrInvalidRequest = errors.New("historical request invalid")
)

// Source yields candles sorted by timestamp for a symbol and interval.
type Source interface {
	FetchCandles(ctx context.Context, symbol, exchange, interval string, start, end time.Time) ([]model.Candle, error)
}

// retrySchedule is the backoff for transient failures.
var retrySchedule = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

// Fetch wraps src with the standard retry policy: transient failures
// retry up to three times with exponential backoff, permanent failures
// return immediately.
func Fetch(ctx context.Context, src Source, symbol, exchange, interval string, start, end time.Time) ([]model.Candle, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		candles, err := src.FetchCandles(ctx, symbol, exchange, interval, start, end)
		if err == nil {
			return candles, nil
		}
		if errors.Is(err, ErrInvalidRequest) {
			return nil, err
		}
		lastErr = err
		if attempt >= len(retrySchedule) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(retrySchedule[attempt]):
		}
	}
	return nil, lastErr
}

// intervalNames maps canonical timeframes to the upstream vocabulary.
var intervalNames = map[string]string{
	"1m":  "ONE_MINUTE",
	"3m":  "THREE_MINUTE",
	"5m":  "FIVE_MINUTE",
	"10m": "TEN_MINUTE",
	"15m": "FIFTEEN_MINUTE",
	"30m": "THIRTY_MINUTE",
	"1h":  "ONE_HOUR",
	"1d":  "ONE_DAY",
}

// SmartAPISource adapts the smartconnect client to Source.
type SmartAPISource struct {
	client *smartconnect.Client
	// Timeout bounds each upstream call.
	Timeout time.Duration
	// ResolveToken maps (exchange, symbol) to the upstream instrument
	// token. Defaults to the identity on symbol.
	ResolveToken func(exchange, symbol string) (string, error)
}

// NewSmartAPISource wraps a logged-in client.
func NewSmartAPISource(client *smartconnect.Client, timeout time.Duration) *SmartAPISource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SmartAPISource{client: client, Timeout: timeout}
}

// FetchCandles implements Source. The per-call deadline turns slow
// upstreams into ErrUnavailable.
func (s *SmartAPISource) FetchCandles(ctx context.Context, symbol, exchange, interval string, start, end time.Time) ([]model.Candle, error) {
	tf, err := timeframe.Normalize(interval)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	upstream, ok := intervalNames[tf]
	if !ok {
		return nil, fmt.Errorf("%w: interval %s has no upstream equivalent", ErrInvalidRequest, tf)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start %v not before end %v", ErrInvalidRequest, start, end)
	}

	token := symbol
	if s.ResolveToken != nil {
		token, err = s.ResolveToken(exchange, symbol)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()
	rows, err := s.client.GetCandleData(callCtx, exchange, token, upstream, start, end)
	if err != nil {
		if errors.Is(err, smartconnect.ErrRejected) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, model.Candle{
			Symbol:      symbol,
			Timeframe:   tf,
			BucketStart: timeframe.BucketStart(r.Timestamp, tf),
			Open:        r.Open,
			High:        r.High,
			Low:         r.Low,
			Close:       r.Close,
			Volume:      r.Volume,
			VWAP:        (r.High + r.Low + r.Close) / 3,
			TickCount:   1,
			Complete:    true,
		})
	}
	sort.Slice(candles, func(i, j int) bool {
		return candles[i].BucketStart.Before(candles[j].BucketStart)
	})
	return candles, nil
}
