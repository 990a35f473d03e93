package order

import "time"

// Order lifecycle states (spec §3): NEW -> (PARTIAL_FILL)* -> FILLED | REJECTED | CANCELLED.
const (
	StatusNew       = "NEW"
	StatusPartial   = "PARTIAL_FILL"
	StatusFilled    = "FILLED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

// Order is the engine's record of a submitted order (spec §3).
// ClientOrderID is a deterministic 20-hex-char id derived from
// (symbol, side, quantity, coarse_timestamp) — see pkg/idgen — so that
// a retried Execute call for the same signal within one coarse window
// resubmits the identical id instead of duplicating the fill.
type Order struct {
	ClientOrderID string
	Symbol        string
	Side          string // BUY or SELL
	Quantity      float64
	Status        string
	CreatedAt     time.Time

	// Price and RealizedPnL are only populated on the EventOrderFilled
	// published after position accounting (Engine.onFilled,
	// Manager.drainManualOrders) completes — the executor itself never
	// knows the realized PnL of a fill, only the caller tracking position
	// state does. RealizedPnL is 0 for an opening or pyramiding fill.
	Price       float64
	RealizedPnL float64
}

// IsFilled reports whether the order reached its filled terminal state.
func (o *Order) IsFilled() bool {
	return o.Status == StatusFilled
}

// IsTerminal reports whether the order can no longer transition.
func (o *Order) IsTerminal() bool {
	return o.Status == StatusFilled || o.Status == StatusRejected || o.Status == StatusCancelled
}

// Signal is a TradingEngine's trade decision, the input to OrderExecutor.Execute
// (spec §4.5).
type Signal struct {
	Symbol          string
	Side            string // BUY or SELL
	SizeNotionalUsd float64
	PriceHint       float64
	GeneratedAt     time.Time
}

// ExecutionResult is OrderExecutor.Execute's outcome.
type ExecutionResult struct {
	OK            bool
	Reason        string // risk_block, kill_switch, exposure_limit, broker_error
	OrderID       string
	ClientOrderID string
	Err           error
}
