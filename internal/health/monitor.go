// Package health implements the HealthMonitor: a periodic task that
// samples every TradingEngine's health, detects crash/timeout/error-spike
// conditions, and asks RecoveryPolicy whether a restart is allowed (spec
// §4.7).
package health

import (
	"context"
	"log"
	"sync"
	"time"

	"trading-core/internal/engine"
)

// Source is the narrow view a Monitor needs of a running engine. Defined
// here (not imported from internal/manager) so the Manager can depend on
// Monitor without a cycle: Manager implements Restarter and supplies
// Sources, Monitor never imports Manager.
type Source interface {
	Symbol() string
	Health() engine.EngineHealth
}

// Recoverer authorizes a restart; implemented by internal/recovery.Recovery.
type Recoverer interface {
	ShouldRecover(symbol string) bool
}

// Restarter performs the actual restart; implemented by internal/manager.Manager.
type Restarter interface {
	RestartEngine(symbol string) error
}

// Config configures the monitor loop (spec §6 health.*).
type Config struct {
	CheckInterval       time.Duration
	HeartbeatTimeout    time.Duration
	ErrorSpikeThreshold int
}

// DefaultConfig returns spec §4.7/§6's documented defaults.
func DefaultConfig() Config {
	return Config{CheckInterval: 30 * time.Second, HeartbeatTimeout: 60 * time.Second, ErrorSpikeThreshold: 10}
}

// Monitor runs the periodic health-check cycle.
type Monitor struct {
	cfg       Config
	sources   func() []Source
	recoverer Recoverer
	restarter Restarter

	mu           sync.Mutex
	lastErrCount map[string]int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Monitor. sources is called fresh each cycle so the set of
// engines can change (engines started/stopped between cycles) without the
// monitor needing to be restarted.
func New(cfg Config, sources func() []Source, recoverer Recoverer, restarter Restarter) *Monitor {
	return &Monitor{
		cfg:          cfg,
		sources:      sources,
		recoverer:    recoverer,
		restarter:    restarter,
		lastErrCount: make(map[string]int),
	}
}

// Start launches the background loop.
func (m *Monitor) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx)
}

// Stop cancels the loop and waits for it to exit.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.done != nil {
		<-m.done
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

// checkOnce runs one sequential pass over every engine's snapshot. It
// never touches an engine directly beyond reading its Health() snapshot,
// so a slow engine cannot delay another engine's check (spec §4.7
// Ordering).
func (m *Monitor) checkOnce() {
	now := time.Now()
	for _, src := range m.sources() {
		symbol := src.Symbol()
		h := src.Health()

		flag := false
		switch {
		case h.State == engine.StateCrashed:
			flag = true
		case h.State == engine.StateRunning && now.Unix()-h.LastHeartbeatUnix > int64(m.cfg.HeartbeatTimeout.Seconds()):
			flag = true
		case h.State == engine.StateRunning && h.ErrorCount > m.cfg.ErrorSpikeThreshold:
			m.mu.Lock()
			prev, seen := m.lastErrCount[symbol]
			m.lastErrCount[symbol] = h.ErrorCount
			m.mu.Unlock()
			if seen && prev == h.ErrorCount {
				flag = true
			}
		}

		if !flag {
			continue
		}

		if m.recoverer.ShouldRecover(symbol) {
			if err := m.restarter.RestartEngine(symbol); err != nil {
				log.Printf("health: restart of %s failed: %v", symbol, err)
			} else {
				m.mu.Lock()
				delete(m.lastErrCount, symbol)
				m.mu.Unlock()
			}
		} else {
			log.Printf("health: %s flagged but max recoveries reached, operator intervention required", symbol)
		}
	}
}
