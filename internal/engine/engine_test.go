package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	ibroker "trading-core/internal/broker"
	"trading-core/internal/order"
	"trading-core/internal/predictor"
	"trading-core/internal/queue"
	"trading-core/internal/risk"
	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

func newTestEngine(t *testing.T) (*Engine, *queue.SymbolQueue) {
	t.Helper()
	b := ibroker.NewSimulatedBroker(10000, 0)
	b.SeedPrice("BTC/USDT", 50000)
	r := risk.NewManager(risk.DefaultPolicy(), 10000)
	x := order.NewExecutor(b, r, nil, 1000, 1000, 0)
	p := predictor.New(predictor.Weights{Tabular: 1, Sequence: 0, Auxiliary: 0}, 0.55)
	_ = p.Load(predictor.ModelPaths{Tabular: "/dev/null", Sequence: "/dev/null"})

	q := queue.New(16)
	cfg := DefaultConfig()
	cfg.CycleInterval = 10 * time.Millisecond
	e := New("BTC/USDT", cfg, q, b, p, r, x, nil, nil)
	return e, q
}

func TestEngineStartRunStop(t *testing.T) {
	e, q := newTestEngine(t)
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if e.State() != StateRunning {
		t.Fatalf("expected RUNNING, got %s", e.State())
	}

	q.Push(ticks.MarketData{Symbol: "BTC/USDT", Price: 50000})
	time.Sleep(50 * time.Millisecond)

	e.Stop(time.Second)
	if e.State() != StateStopped {
		t.Fatalf("expected STOPPED after Stop, got %s", e.State())
	}
}

func TestEngineBootstrapFailureCrashes(t *testing.T) {
	e, _ := newTestEngine(t)
	e.broker = &alwaysFailBroker{}
	if err := e.Start(context.Background()); err == nil {
		t.Fatal("expected bootstrap failure to error")
	}
	if e.State() != StateCrashed {
		t.Fatalf("expected CRASHED after bootstrap failure, got %s", e.State())
	}
}

type alwaysFailBroker struct{ ibroker.Broker }

func (a *alwaysFailBroker) FetchHistoricalBars(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	return nil, errors.New("simulated bootstrap failure")
}
