package risk

import "testing"

func TestPositionSizeUsdClampsToMaxSymbolRisk(t *testing.T) {
	mgr := NewManager(DefaultPolicy(), 10000)
	size := mgr.PositionSizeUsd("BTC/USDT", 0.95, 1.0, 0.15, 10000)
	if size > 10000*DefaultPolicy().MaxSymbolRiskPct {
		t.Fatalf("size %v exceeds max_symbol_risk_pct band", size)
	}
	if size < DefaultPolicy().MinNotionalUsd {
		t.Fatalf("size %v below min_notional_usd", size)
	}
}

func TestCanOpenNewPositionRespectsConcurrencyCap(t *testing.T) {
	policy := DefaultPolicy()
	policy.MaxConcurrentPositions = 2
	mgr := NewManager(policy, 10000)

	mgr.OnOrderFilled("BTC/USDT", "BUY", 100, 0, true)
	if !mgr.CanOpenNewPosition("ETH/USDT") {
		t.Fatal("expected a second position to be allowed at cap=2, open=1")
	}
	mgr.OnOrderFilled("ETH/USDT", "BUY", 100, 0, true)
	if mgr.CanOpenNewPosition("SOL/USDT") {
		t.Fatal("expected CanOpenNewPosition=false at cap=2, open=2")
	}
}

// Scenario 2 from spec §8: global stop latch.
func TestOnPositionClosedEngagesGlobalStopLatch(t *testing.T) {
	mgr := NewManager(DefaultPolicy(), 10000)
	mgr.OnPositionClosed("BTC/USDT", -350)

	book := mgr.Summary()
	if got, want := book.RealizedTodayPct, -0.035; got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("realized_today_pct = %v, want %v", got, want)
	}
	if !book.GlobalStopEngaged {
		t.Fatal("expected global_stop_engaged=true after breaching max_daily_loss_pct")
	}
	if mgr.CanOpenNewPosition("BTC/USDT") {
		t.Fatal("CanOpenNewPosition must be false once the global stop is latched")
	}
}

func TestResetDayClearsLatch(t *testing.T) {
	mgr := NewManager(DefaultPolicy(), 10000)
	mgr.OnPositionClosed("BTC/USDT", -350)
	mgr.ResetDay()

	book := mgr.Summary()
	if book.GlobalStopEngaged {
		t.Fatal("ResetDay must clear global_stop_engaged")
	}
	if book.RealizedTodayPct != 0 {
		t.Fatalf("ResetDay must zero realized_today_pct, got %v", book.RealizedTodayPct)
	}
	if book.EquityStartDay != book.EquityNow {
		t.Fatalf("ResetDay must snapshot equity_start_day=equity_now, got %v vs %v", book.EquityStartDay, book.EquityNow)
	}
}

func TestGlobalStopIsOneWayLatchWithinDay(t *testing.T) {
	mgr := NewManager(DefaultPolicy(), 10000)
	mgr.OnPositionClosed("BTC/USDT", -350)
	mgr.OnPositionClosed("BTC/USDT", 500) // equity recovers, but the latch does not clear
	if !mgr.Summary().GlobalStopEngaged {
		t.Fatal("global stop is a one-way latch within the day; recovering equity must not clear it")
	}
}
