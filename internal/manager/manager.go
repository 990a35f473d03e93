// Package manager implements the EngineManager: the lifecycle owner and
// public control surface for the whole trading core (spec §4.10). It
// exclusively owns the set of TradingEngines, the MarketFeeder, the
// RiskManager, the HealthMonitor, and RecoveryPolicy (spec §3 Ownership).
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	ibroker "trading-core/internal/broker"
	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/health"
	"trading-core/internal/journal"
	"trading-core/internal/market"
	"trading-core/internal/order"
	"trading-core/internal/predictor"
	"trading-core/internal/queue"
	"trading-core/internal/recovery"
	"trading-core/internal/registry"
	"trading-core/internal/risk"
	"trading-core/internal/store"
	"trading-core/pkg/ticks"
)

// Status is the synthesized fleet-wide view spec §4.10/§6 status_all returns.
type Status struct {
	Total   int                   `json:"total"`
	Running int                   `json:"running"`
	Crashed int                   `json:"crashed"`
	Stopped int                   `json:"stopped"`
	Engines []engine.EngineHealth `json:"engines"`
}

// Manager is the EngineManager.
type Manager struct {
	broker    ibroker.Broker
	risk      *risk.Manager
	executor  *order.Executor
	predictor *predictor.Predictor
	cfg       engine.Config
	journalDir string

	bus   *events.Bus
	audit *store.Store

	feeder       *market.Feeder
	feederCancel context.CancelFunc

	registry *registry.Registry
	recovery *recovery.Recovery
	monitor  *health.Monitor

	manual       *order.ManualQueue
	manualCancel context.CancelFunc

	mu                 sync.Mutex
	queues             map[string]*queue.SymbolQueue
	engines            map[string]*engine.Engine
	manualPositionSide map[string]string
	manualEntryPrice   map[string]float64
	manualEntryQty     map[string]float64
}

// New builds a Manager. All shared collaborators (broker, risk, executor,
// predictor) must already be constructed by the caller — spec §3
// Ownership makes RiskManager and OrderExecutor shared-by-reference
// singletons the Manager does not itself create. bus and audit are
// optional: a nil bus disables the audit subscription, and a nil audit
// store disables persistence even with a bus present.
func New(b ibroker.Broker, r *risk.Manager, x *order.Executor, p *predictor.Predictor, cfg engine.Config, journalDir, registryPath string, recoveryPolicy recovery.Policy, healthCfg health.Config, bus *events.Bus, audit *store.Store) *Manager {
	m := &Manager{
		broker:     b,
		risk:       r,
		executor:   x,
		predictor:  p,
		cfg:        cfg,
		journalDir: journalDir,
		bus:        bus,
		audit:      audit,
		feeder:     market.New(b, market.DefaultReconnectConfig()),
		registry:   registry.New(registryPath),
		recovery:   recovery.New(recoveryPolicy),
		manual:             order.NewManualQueue(64),
		queues:             make(map[string]*queue.SymbolQueue),
		engines:            make(map[string]*engine.Engine),
		manualPositionSide: make(map[string]string),
		manualEntryPrice:   make(map[string]float64),
		manualEntryQty:     make(map[string]float64),
	}
	m.monitor = health.New(healthCfg, m.healthSources, m.recovery, m)
	return m
}

// SubmitManualOrder enqueues an operator-submitted signal. It is drained
// through the same OrderExecutor.Execute pipeline as engine-generated
// signals (spec §12 supplemented feature), so it obtains the same
// kill-switch, risk, and idempotency guarantees.
func (m *Manager) SubmitManualOrder(signal order.Signal) {
	m.manual.Enqueue(signal)
}

// drainManualOrders runs for the Manager's lifetime, executing queued
// manual signals one at a time and feeding fills into the RiskManager's
// EquityBook exactly like a TradingEngine's own onFilled accounting.
func (m *Manager) drainManualOrders(ctx context.Context) {
	m.manual.Drain(ctx, func(signal order.Signal) {
		result := m.executor.Execute(ctx, signal)
		if !result.OK {
			log.Printf("manager: manual order %s %s rejected: %s", signal.Side, signal.Symbol, result.Reason)
			return
		}
		quantity := signal.SizeNotionalUsd / signal.PriceHint

		m.mu.Lock()
		prevSide := m.manualPositionSide[signal.Symbol]
		prevPrice := m.manualEntryPrice[signal.Symbol]
		prevQty := m.manualEntryQty[signal.Symbol]
		m.manualPositionSide[signal.Symbol] = signal.Side
		m.manualEntryPrice[signal.Symbol] = signal.PriceHint
		m.manualEntryQty[signal.Symbol] = quantity
		m.mu.Unlock()

		var realizedPnl float64
		switch {
		case prevSide == "":
			m.risk.OnOrderFilled(signal.Symbol, signal.Side, signal.SizeNotionalUsd, 0, true)
		case prevSide == signal.Side:
			// Pyramiding into the existing manual position.
		default:
			realizedPnl = order.CalculatePnL(prevSide, prevQty, prevPrice, signal.PriceHint, 0)
			m.risk.OnOrderFilled(signal.Symbol, signal.Side, signal.SizeNotionalUsd, 0, false)
			m.risk.OnPositionClosed(signal.Symbol, realizedPnl)
		}

		order.EmitPositionUpdate(m.bus, signal.Symbol, signal.Side, quantity, signal.PriceHint)

		if m.bus != nil {
			m.bus.Publish(events.EventOrderFilled, order.Order{
				ClientOrderID: result.ClientOrderID,
				Symbol:        signal.Symbol,
				Side:          signal.Side,
				Quantity:      quantity,
				Status:        order.StatusFilled,
				CreatedAt:     time.Now(),
				Price:         signal.PriceHint,
				RealizedPnL:   realizedPnl,
			})
		}
	})
}

// subscribeAudit persists every submitted/filled order into the durable
// audit trail (spec §12 supplemented feature). Runs for the Manager's
// lifetime; stops when ctx is cancelled in StopAll.
func (m *Manager) subscribeAudit(ctx context.Context) {
	if m.bus == nil || m.audit == nil {
		return
	}
	stream, unsub := m.bus.Subscribe(events.EventOrderFilled, 256)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				o, ok := msg.(order.Order)
				if !ok {
					continue
				}
				orderID, err := m.audit.RecordOrder(ctx, o.ClientOrderID, o.Symbol, o.Side, o.Quantity, o.Status, o.CreatedAt)
				if err != nil {
					log.Printf("manager: audit write failed: %v", err)
					continue
				}
				if o.Status == order.StatusFilled {
					if err := m.recordTrade(ctx, orderID, o); err != nil {
						log.Printf("manager: audit trade write failed: %v", err)
					}
				}
			}
		}
	}()
}

// recordTrade persists a fill row and the resulting position, deriving the
// new running position from the audit trail's own prior state rather than
// from the live engine's in-memory tracking: same-direction fills weight-
// average into the existing avg_price, an opposite-direction or first fill
// resets it to the fill price.
func (m *Manager) recordTrade(ctx context.Context, orderID string, o order.Order) error {
	prev, err := m.audit.GetPosition(ctx, o.Symbol)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	signedQty := o.Quantity
	if o.Side == "SELL" {
		signedQty = -signedQty
	}
	newQty := prev.Quantity + signedQty

	newAvgPrice := o.Price
	sameDirection := prev.Quantity != 0 && newQty != 0 && (prev.Quantity > 0) == (newQty > 0)
	if sameDirection {
		newAvgPrice = (prev.Quantity*prev.AvgPrice + signedQty*o.Price) / newQty
	}

	return m.audit.RecordTrade(ctx, orderID, o.Symbol, o.Side, o.Price, o.Quantity, o.RealizedPnL, newQty, newAvgPrice, o.CreatedAt)
}

func (m *Manager) healthSources() []health.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]health.Source, 0, len(m.engines))
	for _, e := range m.engines {
		out = append(out, e)
	}
	return out
}

// StartAll allocates a SymbolQueue and TradingEngine per symbol, starts
// the shared MarketFeeder with a dispatcher that routes by symbol, starts
// the HealthMonitor, and registers every engine (spec §4.10).
func (m *Manager) StartAll(ctx context.Context, symbols []string) error {
	for _, symbol := range symbols {
		if err := m.StartEngine(symbol); err != nil {
			return fmt.Errorf("manager: StartAll: %s: %w", symbol, err)
		}
	}

	feederCtx, cancel := context.WithCancel(ctx)
	m.feederCancel = cancel
	go func() {
		if err := m.feeder.Run(feederCtx, symbols, m.dispatch); err != nil {
			log.Printf("manager: feeder stopped: %v", err)
		}
	}()
	m.subscribeAudit(feederCtx)

	manualCtx, manualCancel := context.WithCancel(ctx)
	m.manualCancel = manualCancel
	go m.drainManualOrders(manualCtx)

	m.monitor.Start()
	return nil
}

// dispatch routes a tick to its symbol's queue; unknown symbols are
// dropped (the feeder may be subscribed more broadly than the engine set
// during a partial-start transition).
func (m *Manager) dispatch(md ticks.MarketData) {
	m.mu.Lock()
	q, ok := m.queues[md.Symbol]
	m.mu.Unlock()
	if !ok {
		return
	}
	q.Push(md)
	if m.bus != nil {
		m.bus.Publish(events.EventPriceTick, md)
	}
}

// StopAll stops the HealthMonitor, closes the MarketFeeder, stops every
// engine concurrently (each bounded by timeout), and flushes the
// Registry. Safe to call during startup failures (spec §4.10).
func (m *Manager) StopAll(timeout time.Duration) {
	m.monitor.Stop()
	if m.manualCancel != nil {
		m.manualCancel()
	}
	if m.feederCancel != nil {
		m.feederCancel()
	}
	m.feeder.Close()

	m.mu.Lock()
	symbols := make([]string, 0, len(m.engines))
	for s := range m.engines {
		symbols = append(symbols, s)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			_ = m.StopEngine(symbol, timeout)
		}(s)
	}
	wg.Wait()
}

// StartEngine allocates resources and starts symbol's engine. Idempotent:
// calling it for an already-running symbol is a no-op returning success. If
// a prior (stopped or crashed) engine for symbol still exists, it is fully
// stopped — closing its journal writer — before being replaced, so a
// restart never leaks the previous engine's per-symbol log file handle.
func (m *Manager) StartEngine(symbol string) error {
	m.mu.Lock()
	if e, ok := m.engines[symbol]; ok {
		if e.State() == engine.StateRunning {
			m.mu.Unlock()
			return nil
		}
		m.mu.Unlock()
		e.Stop(10 * time.Second)
		m.mu.Lock()
	}
	q, ok := m.queues[symbol]
	if !ok {
		q = queue.New(m.cfg.QueueCapacity)
		m.queues[symbol] = q
	}
	var j *journal.Writer
	if m.journalDir != "" {
		j = journal.New(m.journalDir, symbol)
	}
	e := engine.New(symbol, m.cfg, q, m.broker, m.predictor, m.risk, m.executor, journalAdapter{j}, m.bus)
	m.engines[symbol] = e
	m.mu.Unlock()

	if err := e.Start(context.Background()); err != nil {
		m.registry.Register(symbol, e.Health())
		return err
	}
	m.registry.Register(symbol, e.Health())
	return nil
}

// journalAdapter lets a nil *journal.Writer satisfy engine.Journal as a
// harmless no-op, since Manager may run without a configured journal dir.
type journalAdapter struct{ w *journal.Writer }

func (j journalAdapter) Write(level, eventType string, payload any) error {
	if j.w == nil {
		return nil
	}
	return j.w.Write(level, eventType, payload)
}

func (j journalAdapter) Close() error {
	if j.w == nil {
		return nil
	}
	return j.w.Close()
}

// StopEngine stops symbol's engine within timeout and updates the registry.
func (m *Manager) StopEngine(symbol string, timeout time.Duration) error {
	m.mu.Lock()
	e, ok := m.engines[symbol]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("manager: unknown symbol %s", symbol)
	}
	e.Stop(timeout)
	m.registry.Update(symbol, e.Health())
	return nil
}

// RestartEngine stops then starts symbol's engine with a 1-second gap. It
// does NOT consult RecoveryPolicy — that gate belongs to the HealthMonitor;
// operator- and monitor-initiated restarts through this method are always
// honored (spec §4.10).
func (m *Manager) RestartEngine(symbol string) error {
	if err := m.StopEngine(symbol, 10*time.Second); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return m.StartEngine(symbol)
}

// Status synthesizes the fleet-wide view from live engine health, not from
// the Registry (the Registry is a fallback view per spec §4.10).
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{Total: len(m.engines)}
	for _, e := range m.engines {
		h := e.Health()
		status.Engines = append(status.Engines, h)
		switch h.State {
		case engine.StateRunning:
			status.Running++
		case engine.StateCrashed:
			status.Crashed++
		case engine.StateStopped:
			status.Stopped++
		}
	}
	return status
}

// StatusOne returns symbol's EngineHealth, or ok=false if unknown.
func (m *Manager) StatusOne(symbol string) (engine.EngineHealth, bool) {
	m.mu.Lock()
	e, ok := m.engines[symbol]
	m.mu.Unlock()
	if !ok {
		return engine.EngineHealth{}, false
	}
	return e.Health(), true
}
