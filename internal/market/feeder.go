// Package market implements the MarketFeeder: the single subscriber to
// the exchange's live tick stream, responsible for per-symbol history
// bootstrap and non-blocking per-symbol dispatch (spec §4.1).
package market

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trading-core/internal/broker"
	"trading-core/pkg/bars"
	"trading-core/pkg/ticks"
)

// ErrBootstrap is returned by Bootstrap after three failed history
// fetches, per spec §4.1 and the bootstrap-failure error kind in §7.
var ErrBootstrap = errors.New("market: bootstrap failed after 3 attempts")

// ReconnectConfig mirrors the teacher's pkg/market/binance.ReconnectConfig
// shape, generalized to the feeder's own reconnect contract: wait
// min(base*2^attempt, cap) and reset the attempt counter after
// stable_window of successful delivery.
type ReconnectConfig struct {
	BaseSec         float64
	CapSec          float64
	StableWindowSec float64
}

// DefaultReconnectConfig returns spec §4.1's documented defaults.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{BaseSec: 1, CapSec: 30, StableWindowSec: 60}
}

func (c ReconnectConfig) backoff(attempt int) time.Duration {
	delay := c.BaseSec
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if delay > c.CapSec {
		delay = c.CapSec
	}
	return time.Duration(delay * float64(time.Second))
}

// Feeder maintains the single live connection and bootstraps history on
// behalf of every TradingEngine.
type Feeder struct {
	broker    broker.Broker
	reconnect ReconnectConfig
	cancel    context.CancelFunc
}

// New builds a Feeder backed by b, the abstract broker capability.
func New(b broker.Broker, reconnect ReconnectConfig) *Feeder {
	return &Feeder{broker: b, reconnect: reconnect}
}

// Bootstrap fetches the most recent limit minute-bars (spec default 1500)
// via the broker's historical capability, retrying up to three times, and
// returns the already-gap-filled sequence FetchHistoricalBars produced.
func (f *Feeder) Bootstrap(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	if limit <= 0 {
		limit = 1500
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		out, err := f.broker.FetchHistoricalBars(ctx, symbol, limit)
		if err == nil {
			return out, nil
		}
		lastErr = err
		log.Printf("market: bootstrap attempt %d/3 for %s failed: %v", attempt+1, symbol, err)
	}
	return nil, fmt.Errorf("%w: %s: %v", ErrBootstrap, symbol, lastErr)
}

// Dispatcher routes a tick to its symbol's destination; the feeder never
// blocks on it (spec §4.1's non-blocking dispatch contract). Implemented
// by the EngineManager as a fan-out to per-symbol SymbolQueues.
type Dispatcher func(ticks.MarketData)

// Run opens the live stream for symbols and, for every received tick,
// invokes onTick synchronously. It is long-lived: it returns only when ctx
// is cancelled or Close is called. On any connect or stream error it waits
// the configured backoff and reconnects, with no limit on the number of
// attempts; the attempt counter
// resets after StableWindowSec of uninterrupted delivery. Ticks received
// during reconnection are lost — there is no replay.
func (f *Feeder) Run(ctx context.Context, symbols []string, onTick Dispatcher) error {
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	f.cancel = cancelRun

	attempt := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		streamCtx, cancelStream := context.WithCancel(ctx)

		stream, err := f.broker.StreamTicks(streamCtx, symbols)
		if err != nil {
			cancelStream()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := f.reconnect.backoff(attempt)
			log.Printf("market: stream connect failed (attempt %d), retrying in %s: %v", attempt+1, wait, err)
			attempt++
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		connectedAt := time.Now()
		streamErr := f.consume(ctx, stream, onTick)
		cancelStream()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(connectedAt).Seconds() >= f.reconnect.StableWindowSec {
			attempt = 0
		}
		wait := f.reconnect.backoff(attempt)
		log.Printf("market: stream error, reconnecting in %s: %v", wait, streamErr)
		attempt++
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *Feeder) consume(ctx context.Context, stream <-chan ticks.MarketData, onTick Dispatcher) error {
	for {
		select {
		case md, ok := <-stream:
			if !ok {
				return errors.New("stream closed")
			}
			onTick(md)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close requests termination of Run; the in-flight stream's context is
// cancelled and the underlying connection released.
func (f *Feeder) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}
