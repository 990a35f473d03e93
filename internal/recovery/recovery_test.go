package recovery

import (
	"testing"
	"time"
)

func TestShouldRecoverAllowsFirstRestartImmediately(t *testing.T) {
	r := New(DefaultPolicy())
	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected first restart to be allowed")
	}
}

func TestShouldRecoverEnforcesBackoffBetweenRestarts(t *testing.T) {
	r := New(Policy{MaxRestartsPerHour: 5, BackoffBaseSec: 60})
	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected first restart allowed")
	}
	if r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected second immediate restart to be denied by backoff")
	}
}

func TestShouldRecoverDeniesAfterHourlyCap(t *testing.T) {
	r := New(Policy{MaxRestartsPerHour: 2, BackoffBaseSec: 0})
	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("restart 1 should be allowed")
	}
	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("restart 2 should be allowed")
	}
	if r.ShouldRecover("BTC/USDT") {
		t.Fatal("restart 3 should be denied: hourly cap reached")
	}
}

func TestResetClearsLedger(t *testing.T) {
	r := New(Policy{MaxRestartsPerHour: 1, BackoffBaseSec: 0})
	r.ShouldRecover("BTC/USDT")
	if r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected cap reached before reset")
	}
	r.Reset("BTC/USDT")
	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected restart allowed after Reset")
	}
}

func TestPurgeEvictsEntriesOlderThanOneHour(t *testing.T) {
	r := New(Policy{MaxRestartsPerHour: 1, BackoffBaseSec: 0})
	r.mu.Lock()
	r.ledger["BTC/USDT"] = []time.Time{time.Now().Add(-2 * time.Hour)}
	r.mu.Unlock()

	if !r.ShouldRecover("BTC/USDT") {
		t.Fatal("expected stale ledger entry to be purged, allowing a new restart")
	}
}
