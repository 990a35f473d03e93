package queue

import (
	"testing"
	"time"

	"trading-core/pkg/ticks"
)

func TestPushWithinCapacity(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		if r := q.Push(ticks.MarketData{Symbol: "BTC/USDT", TimestampMs: int64(i)}); r != Accepted {
			t.Fatalf("push %d: expected Accepted, got %v", i, r)
		}
	}
	if q.Len() != 4 {
		t.Fatalf("expected length 4, got %d", q.Len())
	}
}

func TestPushDisplacesOldestAtCapacity(t *testing.T) {
	q := New(4)
	for i := 0; i < 10; i++ {
		q.Push(ticks.MarketData{Symbol: "BTC/USDT", TimestampMs: int64(i)})
	}
	if q.Len() != 4 {
		t.Fatalf("queue length = %d, want bound 4", q.Len())
	}
	for want := int64(6); want < 10; want++ {
		md, ok := q.Pop(10 * time.Millisecond)
		if !ok {
			t.Fatalf("expected item for ts %d", want)
		}
		if md.TimestampMs != want {
			t.Fatalf("pop order = %d, want %d (strict ascending FIFO of survivors)", md.TimestampMs, want)
		}
	}
}

func TestPopTimeout(t *testing.T) {
	q := New(4)
	start := time.Now()
	_, ok := q.Pop(20 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout on empty queue")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Pop returned before the timeout elapsed")
	}
}
