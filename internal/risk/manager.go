// Package risk implements the RiskManager: the single source of truth for
// whether a new position may open and at what notional (spec §4.4).
package risk

import (
	"log"
	"math"
	"sync"
)

// Manager guards a single EquityBook behind a mutex; every TradingEngine
// and the OrderExecutor share one Manager by reference (spec §3
// Ownership). No other component mutates it directly.
type Manager struct {
	mu     sync.Mutex
	policy Policy
	book   EquityBook
}

// NewManager creates a RiskManager seeded with baseEquityUsd and the given
// policy (DefaultPolicy() if the caller has no overrides).
func NewManager(policy Policy, baseEquityUsd float64) *Manager {
	return &Manager{
		policy: policy,
		book: EquityBook{
			EquityStartDay: baseEquityUsd,
			EquityNow:      baseEquityUsd,
		},
	}
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PositionSizeUsd computes the notional for a new position via
// kelly_fraction * volatility_scale * confidence_scale, clamped to the
// policy's [min_notional_usd, max_notional_usd] band and further to
// equity_now * max_symbol_risk_pct (spec §4.4).
//
// edge_over_reward is approximated as 2*prob_up - 1: the standardized edge
// of a binary bet at even odds, which is 0 at prob_up=0.5 and 1 at
// prob_up=1 — the natural input to the Kelly fraction absent a priced
// payoff ratio from the predictor.
func (m *Manager) PositionSizeUsd(symbol string, probUp, confidence, annualVol, equityNow float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	edgeOverReward := 2*probUp - 1
	kellyFraction := clip(m.policy.KellyCoeff*edgeOverReward, 0, m.policy.MaxSymbolRiskPct)

	volatilityScale := 1.0
	if annualVol > 0 {
		volatilityScale = math.Min(1, m.policy.VolTargetAnnual/annualVol)
	}
	confidenceScale := confidence

	size := equityNow * kellyFraction * volatilityScale * confidenceScale
	size = clip(size, m.policy.MinNotionalUsd, m.policy.MaxNotionalUsd)
	return math.Min(size, equityNow*m.policy.MaxSymbolRiskPct)
}

// CanOpenNewPosition reports whether a new position may open for symbol:
// false if the global stop is latched, or the concurrent-position cap is
// already reached.
func (m *Manager) CanOpenNewPosition(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.book.GlobalStopEngaged {
		return false
	}
	return m.book.PositionsOpen < m.policy.MaxConcurrentPositions
}

// OnOrderFilled updates PositionsOpen: opening fills increment it, closing
// fills decrement it. realizedPnl is folded into equity_now immediately, for
// an opening fill's (always zero) pnl or any fill whose realized PnL is not
// also about to be folded in via OnPositionClosed. Closing fills must pass
// realizedPnl=0 here and report the real pnl to OnPositionClosed instead —
// that is the single place a closing fill's PnL is meant to land (spec §4.4).
func (m *Manager) OnOrderFilled(symbol, side string, notional, realizedPnl float64, opening bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if opening {
		m.book.PositionsOpen++
	} else if m.book.PositionsOpen > 0 {
		m.book.PositionsOpen--
	}
	m.book.EquityNow += realizedPnl
}

// OnPositionClosed folds realizedPnl into equity_now, recomputes
// realized_today_pct, and engages the one-way global-stop latch if the
// daily loss limit is breached.
func (m *Manager) OnPositionClosed(symbol string, realizedPnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book.EquityNow += realizedPnl
	if m.book.EquityStartDay != 0 {
		m.book.RealizedTodayPct = (m.book.EquityNow - m.book.EquityStartDay) / m.book.EquityStartDay
	}
	if m.book.RealizedTodayPct <= -m.policy.MaxDailyLossPct/100 {
		if !m.book.GlobalStopEngaged {
			log.Printf("risk: global stop engaged, realized_today_pct=%.4f breaches max_daily_loss_pct=%.2f%%",
				m.book.RealizedTodayPct, m.policy.MaxDailyLossPct)
		}
		m.book.GlobalStopEngaged = true
	}
}

// ResetDay snapshots equity_start_day=equity_now, zeroes
// realized_today_pct, and clears the global-stop latch. Called by the
// operator or by a scheduled day-boundary event.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.book.EquityStartDay = m.book.EquityNow
	m.book.RealizedTodayPct = 0
	m.book.GlobalStopEngaged = false
}

// Summary returns a read-only copy of the EquityBook.
func (m *Manager) Summary() EquityBook {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book
}

// GlobalStopEngaged is a narrow accessor OrderExecutor uses to decide
// whether to auto-engage its kill-switch with reason "global_stop".
func (m *Manager) GlobalStopEngaged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.book.GlobalStopEngaged
}

// Policy returns the manager's configured policy.
func (m *Manager) Policy() Policy {
	return m.policy
}
