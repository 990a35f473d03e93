package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	ibroker "trading-core/internal/broker"
	"trading-core/internal/events"
	"trading-core/internal/indicators"
	"trading-core/internal/order"
	"trading-core/internal/predictor"
	"trading-core/internal/queue"
	"trading-core/internal/risk"
	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

// Journal is the narrow logging capability an Engine writes cycle events
// to; implemented by internal/journal.Writer. nil is a valid no-op.
type Journal interface {
	Write(level, eventType string, payload any) error
	Close() error
}

// Engine is one TradingEngine: it owns its SymbolQueue's consumer end and
// its own EngineHealth (spec §3 Ownership), and runs the 8-step RUNNING
// loop described in spec §4.6.
type Engine struct {
	symbol    string
	cfg       Config
	queue     *queue.SymbolQueue
	broker    ibroker.Broker
	predictor *predictor.Predictor
	risk      *risk.Manager
	executor  *order.Executor
	journal   Journal
	bus       *events.Bus

	indicators *indicators.Engine
	closes     []float64 // rolling window of bar closes, seeded by Bootstrap

	positionSide  string // "", "BUY", or "SELL" — this engine's single open position
	entryPrice    float64
	entryQty      float64

	mu        sync.Mutex
	state     EngineState
	startedAt time.Time
	health    EngineHealth

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds an Engine for symbol in state STOPPED. b/p/r/x are the shared
// collaborators the EngineManager wires (spec §3 Ownership: r and x are
// shared by reference across every engine; b's identity is shared too, but
// each engine only ever reads its own queue).
func New(symbol string, cfg Config, q *queue.SymbolQueue, b ibroker.Broker, p *predictor.Predictor, r *risk.Manager, x *order.Executor, j Journal, bus *events.Bus) *Engine {
	return &Engine{
		symbol:     symbol,
		cfg:        cfg,
		queue:      q,
		broker:     b,
		predictor:  p,
		risk:       r,
		executor:   x,
		journal:    j,
		bus:        bus,
		indicators: indicators.NewEngine(10, 30, 14, cfg.BootstrapBars),
		state:      StateStopped,
		health:     EngineHealth{Symbol: symbol, State: StateStopped},
	}
}

// Symbol returns the engine's bound symbol.
func (e *Engine) Symbol() string {
	return e.symbol
}

// State returns the engine's current state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Health returns a snapshot of the engine's EngineHealth.
func (e *Engine) Health() EngineHealth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health
}

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	e.state = s
	e.health.State = s
	e.mu.Unlock()
}

// Start transitions STOPPED -> STARTING -> RUNNING: bootstraps history and
// seeds the indicator window, then launches the background loop. It
// returns once STARTING has either succeeded or failed (bootstrap failure
// transitions directly to CRASHED, per spec §7).
func (e *Engine) Start(ctx context.Context) error {
	e.setState(StateStarting)

	history, err := e.bootstrap(ctx)
	if err != nil {
		e.mu.Lock()
		e.state = StateCrashed
		e.health.State = StateCrashed
		e.health.LastError = err.Error()
		e.mu.Unlock()
		if e.journal != nil {
			e.journal.Write("error", "bootstrap_failed", map[string]any{"error": err.Error()})
		}
		return err
	}
	for _, b := range history {
		e.closes = append(e.closes, b.Close)
		e.indicators.Update(e.symbol, b.Close)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancel = cancel
	e.startedAt = time.Now()
	e.state = StateRunning
	e.health.State = StateRunning
	e.done = make(chan struct{})
	e.mu.Unlock()

	if e.journal != nil {
		e.journal.Write("info", "engine_started", map[string]any{"symbol": e.symbol})
	}

	go e.run(runCtx)
	return nil
}

// bootstrap fetches history from the broker directly, trying up to three
// times with no delay between attempts (MarketFeeder.Bootstrap is not
// used here). Engines bootstrap independently so one symbol's failure
// never blocks another's.
func (e *Engine) bootstrap(ctx context.Context) ([]bars.Bar, error) {
	limit := e.cfg.BootstrapBars
	if limit <= 0 {
		limit = 1500
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		out, err := e.broker.FetchHistoricalBars(ctx, e.symbol, limit)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("engine: bootstrap failed for %s: %w", e.symbol, lastErr)
}

// Stop transitions RUNNING/PAUSED -> STOPPING -> STOPPED, waiting up to
// timeout for the loop to exit cleanly before forcing it (spec §5
// Cancellation semantics).
func (e *Engine) Stop(timeout time.Duration) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopping
	e.health.State = StateStopping
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
		case <-time.After(timeout):
			log.Printf("engine[%s]: forced stop after %s timeout", e.symbol, timeout)
		}
	}

	e.mu.Lock()
	e.state = StateStopped
	e.health.State = StateStopped
	e.mu.Unlock()

	if e.journal != nil {
		e.journal.Write("info", "engine_stopped", map[string]any{"symbol": e.symbol})
		if err := e.journal.Close(); err != nil {
			log.Printf("engine[%s]: journal close: %v", e.symbol, err)
		}
	}
}

// run is the RUNNING loop: one iteration is the 8 steps of spec §4.6.
func (e *Engine) run(ctx context.Context) {
	defer close(e.done)
	errorCount := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		now := time.Now()
		e.mu.Lock()
		e.health.LastHeartbeatUnix = now.Unix()
		e.health.UptimeSeconds = now.Sub(e.startedAt).Seconds()
		e.mu.Unlock()

		cycleErr := e.cycle(ctx)
		if cycleErr != nil {
			errorCount++
			e.mu.Lock()
			e.health.ErrorCount = errorCount
			e.health.LastError = cycleErr.Error()
			e.mu.Unlock()
			if e.journal != nil {
				e.journal.Write("warn", "cycle_error", map[string]any{"error": cycleErr.Error()})
			}
			backoff := time.Duration(math.Min(math.Pow(2, float64(errorCount)), 60)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(e.cfg.CycleInterval):
		case <-ctx.Done():
			return
		}
	}
}

// cycle runs a single iteration of the 8-step loop. Steps 2-7 are the
// signal -> risk -> execution pipeline; step 8 (sleep) is handled by the
// caller. Besides the one-second SymbolQueue.Pop, cycle waits only inside
// OrderExecutor.Execute (rate limiter and broker call).
func (e *Engine) cycle(ctx context.Context) error {
	md, ok := e.queue.Pop(time.Second)
	if !ok {
		return nil // step 2 timeout: skip to step 8
	}

	e.closes = append(e.closes, md.Price)
	if len(e.closes) > e.cfg.BootstrapBars {
		e.closes = e.closes[len(e.closes)-e.cfg.BootstrapBars:]
	}

	features := e.buildFeatures(md)
	annualVol := indicators.AnnualizedVolatility(e.closes)

	pred, err := e.predictor.Predict(features, md.Auxiliary.SentimentPlaceholder)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	if pred.Side == "FLAT" {
		return nil
	}

	summary := e.risk.Summary()
	e.mu.Lock()
	e.health.PositionCount = summary.PositionsOpen
	e.health.DailyPnLPct = summary.RealizedTodayPct
	e.mu.Unlock()

	sizeUsd := e.risk.PositionSizeUsd(e.symbol, pred.ProbUp, pred.Confidence, annualVol, summary.EquityNow)
	if sizeUsd <= 0 {
		return nil
	}

	side := "BUY"
	if pred.Side == "SHORT" {
		side = "SELL"
	}

	signal := order.Signal{
		Symbol:          e.symbol,
		Side:            side,
		SizeNotionalUsd: sizeUsd,
		PriceHint:       md.Price,
		GeneratedAt:     time.Now(),
	}
	result := e.executor.Execute(ctx, signal)

	if e.journal != nil {
		e.journal.Write("info", "execution_result", map[string]any{
			"ok": result.OK, "reason": result.Reason, "client_order_id": result.ClientOrderID,
		})
	}

	if result.OK {
		e.onFilled(result.ClientOrderID, side, sizeUsd, md.Price)
	}

	return nil
}

// onFilled updates the RiskManager's EquityBook after a successful fill and
// publishes the authoritative EventOrderFilled (with the fill price and any
// realized PnL — information the OrderExecutor itself never has). This
// engine holds at most one open position per symbol: a same-direction fill
// pyramids into it without changing PositionsOpen; an opposite-direction
// fill closes the existing position (realized PnL computed via the
// teacher's flat-trade PnL helper) before opening the new one.
func (e *Engine) onFilled(clientOrderID, side string, notionalUsd, fillPrice float64) {
	quantity := notionalUsd / fillPrice
	var realizedPnl float64

	switch {
	case e.positionSide == "":
		e.risk.OnOrderFilled(e.symbol, side, notionalUsd, 0, true)
		e.positionSide, e.entryPrice, e.entryQty = side, fillPrice, quantity
	case e.positionSide == side:
		// Pyramiding into the existing position; PositionsOpen is unchanged.
	default:
		realizedPnl = order.CalculatePnL(e.positionSide, e.entryQty, e.entryPrice, fillPrice, 0)
		e.risk.OnOrderFilled(e.symbol, side, notionalUsd, 0, false)
		e.risk.OnPositionClosed(e.symbol, realizedPnl)
		e.positionSide, e.entryPrice, e.entryQty = side, fillPrice, quantity
	}

	order.EmitPositionUpdate(e.bus, e.symbol, e.positionSide, e.entryQty, e.entryPrice)

	if e.bus != nil {
		e.bus.Publish(events.EventOrderFilled, order.Order{
			ClientOrderID: clientOrderID,
			Symbol:        e.symbol,
			Side:          side,
			Quantity:      quantity,
			Status:        order.StatusFilled,
			CreatedAt:     time.Now(),
			Price:         fillPrice,
			RealizedPnL:   realizedPnl,
		})
	}
}

// buildFeatures derives the feature map the predictor consumes from md and
// the engine's rolling close window. p_tabular and p_sequence are the two
// models' own output probabilities (model-inference internals are an
// explicit spec Non-goal); in the absence of real artifacts this maps the
// indicator engine's momentum/RSI readout into the same [0,1] contract so
// the rest of the pipeline (blend, thresholding, sizing) exercises real
// numbers end to end.
func (e *Engine) buildFeatures(md ticks.MarketData) map[string]float64 {
	ind := e.indicators.Update(e.symbol, md.Price)
	pTabular := sigmoid(ind["sma_short"] - ind["sma_long"])
	pSequence := ind["rsi"] / 100
	return map[string]float64{
		"p_tabular":  pTabular,
		"p_sequence": pSequence,
		"sma_short":  ind["sma_short"],
		"sma_long":   ind["sma_long"],
		"rsi":        ind["rsi"],
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
