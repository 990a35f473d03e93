package order

import (
	"context"
	"testing"
	"time"

	ibroker "trading-core/internal/broker"
	"trading-core/internal/risk"
)

func newTestExecutor(t *testing.T, exposureLimitUsd float64) (*Executor, *ibroker.SimulatedBroker, *risk.Manager) {
	t.Helper()
	b := ibroker.NewSimulatedBroker(10000, 0)
	b.SeedPrice("BTC/USDT", 50000)
	r := risk.NewManager(risk.DefaultPolicy(), 10000)
	e := NewExecutor(b, r, nil, 1000, 1000, exposureLimitUsd)
	return e, b, r
}

func TestExecuteHappyPath(t *testing.T) {
	e, _, _ := newTestExecutor(t, 0)
	res := e.Execute(context.Background(), Signal{
		Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000, GeneratedAt: time.Now(),
	})
	if !res.OK {
		t.Fatalf("expected OK, got reason=%s err=%v", res.Reason, res.Err)
	}
	if res.ClientOrderID == "" {
		t.Fatal("expected a non-empty client_order_id")
	}
}

func TestExecuteBlockedByKillSwitch(t *testing.T) {
	e, _, _ := newTestExecutor(t, 0)
	e.EngageKillSwitch("operator_request")
	res := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if res.OK || res.Reason != ReasonKillSwitch {
		t.Fatalf("expected kill_switch rejection, got %+v", res)
	}
}

func TestExecuteAutoEngagesKillSwitchOnGlobalStop(t *testing.T) {
	e, _, r := newTestExecutor(t, 0)
	r.OnPositionClosed("BTC/USDT", -500) // 5% loss on 10000 equity breaches default 3% limit
	res := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if res.OK || res.Reason != ReasonKillSwitch {
		t.Fatalf("expected kill_switch rejection from global stop, got %+v", res)
	}
	if !e.KillSwitchEngaged() || e.KillSwitchReason() != "global_stop" {
		t.Fatalf("expected kill-switch engaged with reason global_stop, got engaged=%v reason=%s", e.KillSwitchEngaged(), e.KillSwitchReason())
	}
}

func TestExecuteBlockedByRiskManagerConcurrencyCap(t *testing.T) {
	e, _, r := newTestExecutor(t, 0)
	policy := r.Policy()
	for i := 0; i < policy.MaxConcurrentPositions; i++ {
		r.OnOrderFilled("SYM", "BUY", 100, 0, true)
	}
	res := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if res.OK || res.Reason != ReasonRiskBlock {
		t.Fatalf("expected risk_block rejection, got %+v", res)
	}
}

func TestExecuteExposureLimitEngagesKillSwitch(t *testing.T) {
	e, _, _ := newTestExecutor(t, 600)
	first := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if !first.OK {
		t.Fatalf("first order should succeed, got %+v", first)
	}
	second := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if second.OK || second.Reason != ReasonExposureLimit {
		t.Fatalf("expected exposure_limit rejection, got %+v", second)
	}
	if e.KillSwitchReason() != ReasonExposureLimit {
		t.Fatalf("expected kill-switch reason exposure_limit, got %s", e.KillSwitchReason())
	}
}

// Scenario 6 from spec §8: retrying the identical signal within the same
// coarse window must resubmit the same client_order_id and not duplicate
// the broker-side fill.
func TestExecuteIdempotentRetryWithinCoarseWindow(t *testing.T) {
	e, b, _ := newTestExecutor(t, 0)
	sig := Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000}

	r1 := e.Execute(context.Background(), sig)
	r2 := e.Execute(context.Background(), sig)
	if !r1.OK || !r2.OK {
		t.Fatalf("both attempts should succeed, got %+v / %+v", r1, r2)
	}
	if r1.ClientOrderID != r2.ClientOrderID {
		t.Fatalf("expected identical client_order_id within the same coarse window, got %s vs %s", r1.ClientOrderID, r2.ClientOrderID)
	}

	positions, _ := b.GetPositions(context.Background())
	pos := positions["BTC/USDT"]
	if pos.Quantity != 0.01 {
		t.Fatalf("expected single-fill quantity 0.01 (500/50000), got %v — retry was not deduplicated", pos.Quantity)
	}
}

func TestDisengageKillSwitchUnblocks(t *testing.T) {
	e, _, _ := newTestExecutor(t, 0)
	e.EngageKillSwitch("operator_request")
	e.DisengageKillSwitch()
	if e.KillSwitchEngaged() {
		t.Fatal("expected kill-switch cleared")
	}
	res := e.Execute(context.Background(), Signal{Symbol: "BTC/USDT", Side: "BUY", SizeNotionalUsd: 500, PriceHint: 50000})
	if !res.OK {
		t.Fatalf("expected execution to proceed after disengage, got %+v", res)
	}
}
