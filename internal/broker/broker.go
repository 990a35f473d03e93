// Package broker defines the abstract exchange capability spec §6 requires
// OrderExecutor and MarketFeeder to depend on, and ships two
// implementations: a Binance-backed one and a deterministic in-memory
// simulation used for dry-run operation and tests.
package broker

import (
	"context"
	"errors"

	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

// ErrUnsupported is for operations a given Broker implementation does not
// provide. Neither BinanceBroker nor SimulatedBroker returns it; a spot
// venue's GetPositions returns an empty map instead.
var ErrUnsupported = errors.New("broker: operation not supported by this venue")

// OrderRequest is the minimal order intent the OrderExecutor submits. It is
// deliberately narrower than any one exchange's wire format — the point of
// the abstraction is that OrderExecutor never needs to know the venue.
type OrderRequest struct {
	ClientOrderID string
	Symbol        string
	Side          string // BUY or SELL
	Quantity      float64
}

// OrderResult is the venue's ack for a submitted order.
type OrderResult struct {
	OrderID  string
	Status   string
	ClientID string
}

// Position is a venue-reported position snapshot, used out-of-core for
// portfolio sync (spec §6).
type Position struct {
	Symbol        string
	Quantity      float64
	AvgEntryPrice float64
}

// Broker is the abstract capability every venue adapter implements.
type Broker interface {
	// FetchHistoricalBars returns the most recent limit minute-bars for
	// symbol, used by MarketFeeder.Bootstrap.
	FetchHistoricalBars(ctx context.Context, symbol string, limit int) ([]bars.Bar, error)

	// StreamTicks opens a single live-stream connection for symbols and
	// returns a channel of normalized ticks. It does not retry internally;
	// MarketFeeder.Run owns the reconnect/backoff loop described in spec
	// §4.1 and calls StreamTicks again after each failure.
	StreamTicks(ctx context.Context, symbols []string) (<-chan ticks.MarketData, error)

	// SubmitOrder submits req, honoring client_order_id idempotency:
	// resubmitting the same ClientOrderID must not produce a second fill.
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// GetBalances and GetPositions serve Portfolio sync; they are used
	// out-of-core (spec §6) but implemented here for completeness.
	GetBalances(ctx context.Context) (map[string]float64, error)
	GetPositions(ctx context.Context) (map[string]Position, error)
}
