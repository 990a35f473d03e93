package idgen

import "testing"

func TestClientOrderIDDeterministic(t *testing.T) {
	ts := CoarseTimestamp(1_700_000_000_123, 1000)
	a := ClientOrderID("BTC/USDT", "BUY", 0.01, ts)
	b := ClientOrderID("BTC/USDT", "BUY", 0.01, ts)
	if a != b {
		t.Fatalf("same inputs produced different ids: %s vs %s", a, b)
	}
	if len(a) != 20 {
		t.Fatalf("expected 20 hex chars, got %d (%s)", len(a), a)
	}
}

func TestClientOrderIDDiffers(t *testing.T) {
	ts := CoarseTimestamp(1_700_000_000_123, 1000)
	a := ClientOrderID("BTC/USDT", "BUY", 0.01, ts)
	b := ClientOrderID("BTC/USDT", "SELL", 0.01, ts)
	if a == b {
		t.Fatal("different side produced identical id")
	}
	c := ClientOrderID("ETH/USDT", "BUY", 0.01, ts)
	if a == c {
		t.Fatal("different symbol produced identical id")
	}
}

func TestCoarseTimestampBucketsRetries(t *testing.T) {
	t1 := CoarseTimestamp(1_700_000_000_100, 1000)
	t2 := CoarseTimestamp(1_700_000_000_900, 1000)
	if t1 != t2 {
		t.Fatalf("retries within the same window landed in different buckets: %d vs %d", t1, t2)
	}
}
