package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ibroker "trading-core/internal/broker"
	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

type fakeBroker struct {
	historyCalls int
	failHistory  int // number of leading calls to fail
	stream       chan ticks.MarketData
}

func (f *fakeBroker) FetchHistoricalBars(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	f.historyCalls++
	if f.historyCalls <= f.failHistory {
		return nil, errors.New("simulated fetch failure")
	}
	return []bars.Bar{{TimestampMs: 0, Close: 1}}, nil
}

func (f *fakeBroker) StreamTicks(ctx context.Context, symbols []string) (<-chan ticks.MarketData, error) {
	return f.stream, nil
}

func (f *fakeBroker) SubmitOrder(ctx context.Context, req ibroker.OrderRequest) (ibroker.OrderResult, error) {
	return ibroker.OrderResult{}, nil
}
func (f *fakeBroker) GetBalances(ctx context.Context) (map[string]float64, error) { return nil, nil }
func (f *fakeBroker) GetPositions(ctx context.Context) (map[string]ibroker.Position, error) {
	return nil, nil
}

func TestBootstrapRetriesThenSucceeds(t *testing.T) {
	fb := &fakeBroker{failHistory: 2}
	f := New(fb, DefaultReconnectConfig())
	out, err := f.Bootstrap(context.Background(), "BTC/USDT", 10)
	if err != nil {
		t.Fatalf("expected success on 3rd attempt, got %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected bars")
	}
	if fb.historyCalls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fb.historyCalls)
	}
}

func TestBootstrapFailsAfterThreeAttempts(t *testing.T) {
	fb := &fakeBroker{failHistory: 99}
	f := New(fb, DefaultReconnectConfig())
	_, err := f.Bootstrap(context.Background(), "BTC/USDT", 10)
	if !errors.Is(err, ErrBootstrap) {
		t.Fatalf("expected ErrBootstrap, got %v", err)
	}
	if fb.historyCalls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", fb.historyCalls)
	}
}

func TestRunDispatchesTicksBySymbol(t *testing.T) {
	fb := &fakeBroker{stream: make(chan ticks.MarketData, 4)}
	f := New(fb, DefaultReconnectConfig())

	var mu sync.Mutex
	var received []ticks.MarketData
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.Run(ctx, []string{"BTC/USDT"}, func(md ticks.MarketData) {
			mu.Lock()
			received = append(received, md)
			mu.Unlock()
		})
		close(done)
	}()

	fb.stream <- ticks.MarketData{Symbol: "BTC/USDT", Price: 100}
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 || received[0].Symbol != "BTC/USDT" {
		t.Fatalf("expected one BTC/USDT tick, got %+v", received)
	}
}
