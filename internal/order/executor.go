package order

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	ibroker "trading-core/internal/broker"
	"trading-core/internal/events"
	"trading-core/internal/risk"
	"trading-core/pkg/idgen"
)

// Rejection/abort reasons reported on a non-OK ExecutionResult (spec §4.5, §7).
const (
	ReasonKillSwitch    = "kill_switch"
	ReasonRiskBlock     = "risk_block"
	ReasonExposureLimit = "exposure_limit"
	ReasonBrokerError   = "broker_error"
)

// Executor is the OrderExecutor: the single gate between a TradingEngine's
// trade decision and the exchange, enforcing the kill-switch, RiskManager's
// concurrency/exposure gates, and a token-bucket rate limit before every
// submission (spec §4.5).
type Executor struct {
	broker ibroker.Broker
	risk   *risk.Manager
	bus    *events.Bus

	limiter        *rate.Limiter
	coarseWindowMs int64

	exposureLimitUsd float64

	mu            sync.Mutex
	killEngaged   bool
	killReason    string
	exposureUsd   map[string]float64 // symbol -> open notional tracked by this executor
}

// NewExecutor builds an Executor. ratePerSec/burst configure the
// golang.org/x/time/rate token bucket guarding broker submissions;
// exposureLimitUsd is the per-symbol notional ceiling that, once breached,
// auto-engages the kill-switch with reason "exposure_limit".
func NewExecutor(b ibroker.Broker, r *risk.Manager, bus *events.Bus, ratePerSec float64, burst int, exposureLimitUsd float64) *Executor {
	if ratePerSec <= 0 {
		ratePerSec = 5
	}
	if burst <= 0 {
		burst = 5
	}
	return &Executor{
		broker:           b,
		risk:             r,
		bus:              bus,
		limiter:          rate.NewLimiter(rate.Limit(ratePerSec), burst),
		coarseWindowMs:   1000,
		exposureLimitUsd: exposureLimitUsd,
		exposureUsd:      make(map[string]float64),
	}
}

// KillSwitchEngaged reports whether order submission is currently blocked.
func (e *Executor) KillSwitchEngaged() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killEngaged
}

// EngageKillSwitch blocks all future submissions until DisengageKillSwitch is
// called. Idempotent: re-engaging while engaged is a no-op that keeps the
// first recorded reason.
func (e *Executor) EngageKillSwitch(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.killEngaged {
		return
	}
	e.killEngaged = true
	e.killReason = reason
	log.Printf("order: kill-switch engaged, reason=%s", reason)
}

// DisengageKillSwitch clears the kill-switch. Idempotent.
func (e *Executor) DisengageKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.killEngaged {
		return
	}
	e.killEngaged = false
	e.killReason = ""
	log.Println("order: kill-switch disengaged")
}

// KillSwitchReason returns the reason the kill-switch was last engaged for,
// or "" if it is not engaged.
func (e *Executor) KillSwitchReason() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.killReason
}

func (e *Executor) exposure(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exposureUsd[symbol]
}

func (e *Executor) addExposure(symbol string, notional float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exposureUsd[symbol] += notional
}

// Execute runs the full submission pipeline for signal and returns the
// outcome. It never panics on a broker error; callers read Reason/Err.
func (e *Executor) Execute(ctx context.Context, signal Signal) ExecutionResult {
	if e.risk.GlobalStopEngaged() {
		e.EngageKillSwitch("global_stop")
	}
	if e.KillSwitchEngaged() {
		return ExecutionResult{OK: false, Reason: ReasonKillSwitch}
	}

	if !e.risk.CanOpenNewPosition(signal.Symbol) {
		return ExecutionResult{OK: false, Reason: ReasonRiskBlock}
	}

	if e.exposureLimitUsd > 0 && e.exposure(signal.Symbol)+signal.SizeNotionalUsd > e.exposureLimitUsd {
		e.EngageKillSwitch(ReasonExposureLimit)
		return ExecutionResult{OK: false, Reason: ReasonExposureLimit}
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return ExecutionResult{OK: false, Reason: ReasonBrokerError, Err: err}
	}

	if signal.PriceHint <= 0 {
		return ExecutionResult{OK: false, Reason: ReasonBrokerError, Err: fmt.Errorf("order: signal has no usable price_hint")}
	}
	quantity := signal.SizeNotionalUsd / signal.PriceHint

	coarseTs := idgen.CoarseTimestamp(time.Now().UnixMilli(), e.coarseWindowMs)
	clientID := idgen.ClientOrderID(signal.Symbol, signal.Side, quantity, coarseTs)

	if e.bus != nil {
		e.bus.Publish(events.EventOrderSubmitted, Order{
			ClientOrderID: clientID,
			Symbol:        signal.Symbol,
			Side:          signal.Side,
			Quantity:      quantity,
			Status:        StatusNew,
			CreatedAt:     time.Now(),
		})
	}

	res, err := e.broker.SubmitOrder(ctx, ibroker.OrderRequest{
		ClientOrderID: clientID,
		Symbol:        signal.Symbol,
		Side:          signal.Side,
		Quantity:      quantity,
	})
	if err != nil {
		log.Printf("order: submit %s %s qty=%.8f failed: %v", signal.Side, signal.Symbol, quantity, err)
		if e.bus != nil {
			e.bus.Publish(events.EventOrderRejected, err.Error())
		}
		return ExecutionResult{OK: false, Reason: ReasonBrokerError, ClientOrderID: clientID, Err: err}
	}

	e.addExposure(signal.Symbol, signal.SizeNotionalUsd)

	// EventOrderFilled itself is published by the caller (Engine.onFilled /
	// Manager.drainManualOrders) once position accounting completes, since
	// only they know the fill's realized PnL — the executor does not track
	// position state (see internal/risk.Manager.OnOrderFilled's doc comment
	// on why that accounting must not happen twice).
	return ExecutionResult{OK: true, OrderID: res.OrderID, ClientOrderID: clientID}
}
