package stream

import (
	"context"
	"testing"
	"time"

	"candleflow/internal/model"
)

func mkTick(symbol string, ts time.Time, price, size float64) model.Tick {
	return model.Tick{Symbol: symbol, Exchange: "NSE", Price: price, Size: size, TS: ts}
}

// collect drains events until the channel is empty for idle, or closed.
func collect(ch <-chan model.Candle, idle time.Duration) []model.Candle {
	var out []model.Candle
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, c)
		case <-time.After(idle):
			return out
		}
	}
}

func TestSubscribeCreatesAggregatorsLazily(t *testing.T) {
	m := NewManager(Config{Grace: time.Hour})
	defer m.Close(context.Background())

	if m.HasAggregator("RELIANCE", "1m") {
		t.Fatal("aggregator exists before subscription")
	}
	m.Subscribe("s1", "RELIANCE", []string{"1m", "5m"})
	if !m.HasAggregator("RELIANCE", "1m") || !m.HasAggregator("RELIANCE", "5m") {
		t.Fatal("aggregators not created on subscribe")
	}
	if got := m.Snapshot().Aggregators; got != 2 {
		t.Errorf("aggregator count = %d, want 2", got)
	}
}

func TestSubscribeIdempotent(t *testing.T) {
	m := NewManager(Config{Grace: time.Hour})
	defer m.Close(context.Background())

	m.Subscribe("s1", "RELIANCE", []string{"1m"})
	m.Subscribe("s1", "RELIANCE", []string{"1m"})
	if got := m.Snapshot().Aggregators; got != 1 {
		t.Errorf("aggregator count = %d, want 1", got)
	}

	// One unsubscribe returns to the pre-pair state.
	m.Unsubscribe("s1", "RELIANCE", []string{"1m"})
	m.mu.Lock()
	e := m.bySymbol["RELIANCE"]["1m"]
	pending := e != nil && e.graceTimer != nil
	m.mu.Unlock()
	if !pending {
		t.Error("empty interest set did not schedule teardown")
	}
}

func TestTickRouting(t *testing.T) {
	m := NewManager(Config{Grace: time.Hour})

	m.Subscribe("s1", "RELIANCE", []string{"1m"})
	m.Subscribe("s2", "INFY", []string{"1m"})

	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	m.ProcessTick(mkTick("RELIANCE", base, 2500, 10))
	m.ProcessTick(mkTick("INFY", base, 1500, 5))
	m.ProcessTick(mkTick("TCS", base, 3500, 5)) // no subscription — dropped

	events := collect(m.Events(), 200*time.Millisecond)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 partials", len(events))
	}
	seen := map[string]bool{}
	for _, c := range events {
		seen[c.Symbol] = true
		if c.Complete {
			t.Errorf("unexpected completed candle: %+v", c)
		}
	}
	if !seen["RELIANCE"] || !seen["INFY"] {
		t.Errorf("routed symbols = %v", seen)
	}
	m.Close(context.Background())
}

func TestPerPairOrdering(t *testing.T) {
	m := NewManager(Config{Grace: time.Hour})
	m.Subscribe("s1", "RELIANCE", []string{"1m"})

	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m.ProcessTick(mkTick("RELIANCE", base.Add(time.Duration(i)*time.Minute), 2500+float64(i), 1))
	}

	events := collect(m.Events(), 200*time.Millisecond)
	// Each minute tick closes the previous bucket: expect interleaved
	// partial/completed with completed buckets strictly increasing.
	var lastCompleted time.Time
	for _, c := range events {
		if c.Complete {
			if !lastCompleted.IsZero() && !c.BucketStart.After(lastCompleted) {
				t.Errorf("completed out of order: %v after %v", c.BucketStart, lastCompleted)
			}
			lastCompleted = c.BucketStart
		}
	}
	if lastCompleted.IsZero() {
		t.Error("no completed candles observed")
	}
	m.Close(context.Background())
}

func TestGraceTeardownAndResurrection(t *testing.T) {
	m := NewManager(Config{Grace: 50 * time.Millisecond})
	defer m.Close(context.Background())

	m.Subscribe("s1", "RELIANCE", []string{"1m"})
	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	m.ProcessTick(mkTick("RELIANCE", base, 2500, 1))
	collect(m.Events(), 100*time.Millisecond)

	// Re-subscribe within the grace window keeps the open bucket.
	m.Unsubscribe("s1", "RELIANCE", []string{"1m"})
	m.Subscribe("s2", "RELIANCE", []string{"1m"})
	time.Sleep(100 * time.Millisecond)
	if !m.HasAggregator("RELIANCE", "1m") {
		t.Fatal("resurrected aggregator was torn down")
	}

	// A tick in the same bucket extends the pre-unsubscribe candle.
	m.ProcessTick(mkTick("RELIANCE", base.Add(10*time.Second), 2501, 1))
	events := collect(m.Events(), 100*time.Millisecond)
	if len(events) != 1 || events[0].TickCount != 2 {
		t.Fatalf("open bucket not preserved across resurrection: %+v", events)
	}

	// Without re-subscription the aggregator retires after the grace period.
	m.Unsubscribe("s2", "RELIANCE", []string{"1m"})
	deadline := time.Now().Add(2 * time.Second)
	for m.HasAggregator("RELIANCE", "1m") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if m.HasAggregator("RELIANCE", "1m") {
		t.Error("aggregator not retired after grace period")
	}
}

func TestCloseDrainsFinalPartials(t *testing.T) {
	m := NewManager(Config{Grace: time.Hour})
	m.Subscribe("s1", "RELIANCE", []string{"1m"})

	base := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)
	m.ProcessTick(mkTick("RELIANCE", base, 2500, 1))

	// Consume the live partial first.
	collect(m.Events(), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go func() {
		// Drain concurrently so Close's workers can flush.
	}()
	done := make(chan []model.Candle, 1)
	go func() { done <- collect(m.Events(), 300*time.Millisecond) }()
	if err := m.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	final := <-done
	if len(final) != 1 || final[0].Complete {
		t.Fatalf("final drain = %+v, want one final partial", final)
	}
}

func TestDropSession(t *testing.T) {
	m := NewManager(Config{Grace: 30 * time.Millisecond})
	defer m.Close(context.Background())

	m.Subscribe("s1", "RELIANCE", []string{"1m", "5m"})
	m.Subscribe("s2", "RELIANCE", []string{"1m"})
	m.DropSession("s1")

	// 5m had only s1: scheduled for teardown. 1m keeps s2.
	time.Sleep(150 * time.Millisecond)
	if m.HasAggregator("RELIANCE", "5m") {
		t.Error("5m aggregator survived session drop")
	}
	if !m.HasAggregator("RELIANCE", "1m") {
		t.Error("1m aggregator torn down despite live interest")
	}
}
