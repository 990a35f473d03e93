package broker

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

// SimulatedBroker is a deterministic in-memory venue, adapted from the
// teacher's MockExecutor balance/position bookkeeping. It implements
// Broker so the whole EngineManager can run end to end against synthetic
// data without touching an exchange (SPEC_FULL.md §12 dry-run mode).
type SimulatedBroker struct {
	mu        sync.Mutex
	rng       *rand.Rand
	balances  map[string]float64
	positions map[string]Position
	seen      map[string]OrderResult // ClientOrderID -> result, for idempotent resubmission
	lastPrice map[string]float64
	feeRate   float64
}

// NewSimulatedBroker seeds a quote-asset balance and a fee rate (decimal,
// e.g. 0.0004 = 4bps).
func NewSimulatedBroker(initialBalanceUsd, feeRate float64) *SimulatedBroker {
	return &SimulatedBroker{
		rng:       rand.New(rand.NewSource(1)),
		balances:  map[string]float64{"USD": initialBalanceUsd},
		positions: make(map[string]Position),
		seen:      make(map[string]OrderResult),
		lastPrice: make(map[string]float64),
		feeRate:   feeRate,
	}
}

// SeedPrice lets a test or the dry-run feeder set the simulated last price
// for a symbol, used to value market orders.
func (s *SimulatedBroker) SeedPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPrice[symbol] = price
}

// FetchHistoricalBars synthesizes a flat-price bar sequence: limit minutes
// of constant close, gap-filled trivially (there are no gaps to fill).
func (s *SimulatedBroker) FetchHistoricalBars(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	s.mu.Lock()
	price := s.lastPrice[symbol]
	s.mu.Unlock()
	if price == 0 {
		price = 100
	}
	out := make([]bars.Bar, 0, limit)
	start := int64(0)
	for i := 0; i < limit; i++ {
		out = append(out, bars.Bar{
			TimestampMs: start + int64(i)*60_000,
			Open:        price,
			High:        price,
			Low:         price,
			Close:       price,
			Volume:      0,
		})
	}
	return out, nil
}

// StreamTicks emits a synthetic tick once per second per symbol, with a
// small random walk around the seeded price, until ctx is cancelled.
func (s *SimulatedBroker) StreamTicks(ctx context.Context, symbols []string) (<-chan ticks.MarketData, error) {
	out := make(chan ticks.MarketData, 64)
	go func() {
		defer close(out)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				for _, symbol := range symbols {
					s.mu.Lock()
					price := s.lastPrice[symbol]
					if price == 0 {
						price = 100
					}
					price = price * (1 + (s.rng.Float64()-0.5)*0.002)
					s.lastPrice[symbol] = price
					s.mu.Unlock()

					select {
					case out <- ticks.MarketData{
						Symbol:      symbol,
						Price:       price,
						Spread:      price * 0.0005,
						TimestampMs: now.UnixMilli(),
					}:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()
	return out, nil
}

// SubmitOrder applies simple cash accounting: BUY debits balance and opens
// or extends a long position; SELL credits balance and reduces it.
// Resubmitting a ClientOrderID already seen returns the cached result
// without mutating state again, matching the idempotency contract.
func (s *SimulatedBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.seen[req.ClientOrderID]; ok {
		return cached, nil
	}

	price := s.lastPrice[req.Symbol]
	if price == 0 {
		price = 100
	}
	notional := req.Quantity * price
	fee := notional * s.feeRate

	pos := s.positions[req.Symbol]
	switch req.Side {
	case "BUY":
		s.balances["USD"] -= notional + fee
		totalValue := pos.Quantity*pos.AvgEntryPrice + req.Quantity*price
		pos.Quantity += req.Quantity
		if pos.Quantity != 0 {
			pos.AvgEntryPrice = totalValue / pos.Quantity
		}
	case "SELL":
		s.balances["USD"] += notional - fee
		pos.Quantity -= req.Quantity
		if pos.Quantity <= 0 {
			delete(s.positions, req.Symbol)
		}
	default:
		return OrderResult{}, fmt.Errorf("simulated broker: unknown side %q", req.Side)
	}
	if pos.Quantity != 0 {
		pos.Symbol = req.Symbol
		s.positions[req.Symbol] = pos
	}

	result := OrderResult{OrderID: "sim-" + req.ClientOrderID, Status: "FILLED", ClientID: req.ClientOrderID}
	s.seen[req.ClientOrderID] = result
	return result, nil
}

func (s *SimulatedBroker) GetBalances(ctx context.Context) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.balances))
	for k, v := range s.balances {
		out[k] = v
	}
	return out, nil
}

func (s *SimulatedBroker) GetPositions(ctx context.Context) (map[string]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Position, len(s.positions))
	for k, v := range s.positions {
		out[k] = v
	}
	return out, nil
}
