package ringbuf

import (
	"testing"
	"time"

	"candleflow/internal/model"
)

func mkTick(i int) model.Tick {
	return model.Tick{
		Symbol:   "RELIANCE",
		Exchange: "NSE",
		Price:    2500 + float64(i),
		Size:     1,
		TS:       time.Unix(int64(i), 0).UTC(),
	}
}

func TestPushPop(t *testing.T) {
	r := New(4)
	for i := 0; i < 4; i++ {
		if !r.Push(mkTick(i)) {
			t.Fatalf("push %d failed", i)
		}
	}
	if r.Push(mkTick(4)) {
		t.Error("push into full ring should fail")
	}
	if r.Overflow() != 1 {
		t.Errorf("overflow = %d, want 1", r.Overflow())
	}

	for i := 0; i < 4; i++ {
		tk, ok := r.Pop()
		if !ok {
			t.Fatalf("pop %d failed", i)
		}
		if tk.Price != 2500+float64(i) {
			t.Errorf("pop %d price = %v", i, tk.Price)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Error("pop from empty ring should fail")
	}
}

func TestPushOverwrite(t *testing.T) {
	r := New(2)
	r.PushOverwrite(mkTick(0))
	r.PushOverwrite(mkTick(1))
	r.PushOverwrite(mkTick(2)) // evicts tick 0

	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	tk, _ := r.Pop()
	if tk.Price != 2501 {
		t.Errorf("oldest after overwrite = %v, want 2501", tk.Price)
	}
}

func TestCapacityRounding(t *testing.T) {
	if got := New(3).Cap(); got != 4 {
		t.Errorf("cap(3) = %d, want 4", got)
	}
	if got := New(0).Cap(); got != 2 {
		t.Errorf("cap(0) = %d, want 2", got)
	}
	if got := New(1024).Cap(); got != 1024 {
		t.Errorf("cap(1024) = %d, want 1024", got)
	}
}

func TestWrapAround(t *testing.T) {
	r := New(4)
	for round := 0; round < 10; round++ {
		for i := 0; i < 3; i++ {
			if !r.Push(mkTick(round*3 + i)) {
				t.Fatalf("round %d push %d failed", round, i)
			}
		}
		for i := 0; i < 3; i++ {
			if _, ok := r.Pop(); !ok {
				t.Fatalf("round %d pop %d failed", round, i)
			}
		}
	}
	if r.Len() != 0 {
		t.Errorf("len after drain = %d", r.Len())
	}
}
