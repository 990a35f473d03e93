package broker

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"trading-core/pkg/bars"
	"trading-core/pkg/exchanges/common"
	market "trading-core/pkg/market/binance"
	spot "trading-core/pkg/exchanges/binance/spot"
	"trading-core/pkg/ticks"
)

// BinanceBroker adapts the teacher's hand-rolled REST/WS Binance clients to
// the Broker capability. It holds a REST klines client for historical
// bars, a WS stream client for live ticks, and a signed spot client for
// order submission and balance/position sync.
type BinanceBroker struct {
	rest   *market.Client
	stream *market.StreamClient
	spot   *spot.Client
	symbol string // active kline interval the broker subscribes with
}

// NewBinanceBroker builds a broker bound to the given spot API key and
// secret. testnet
// routes both REST and WS clients to Binance's testnet hosts.
func NewBinanceBroker(apiKey, apiSecret string, testnet bool) *BinanceBroker {
	return &BinanceBroker{
		rest:   market.NewClient(apiKey, apiSecret, testnet),
		stream: market.NewStreamClient(testnet),
		spot: spot.New(spot.Config{
			APIKey:    apiKey,
			APISecret: apiSecret,
			Testnet:   testnet,
		}),
	}
}

// FetchHistoricalBars fetches limit 1-minute klines and converts them to
// the gap-filled Bar sequence MarketFeeder.Bootstrap requires.
func (b *BinanceBroker) FetchHistoricalBars(ctx context.Context, symbol string, limit int) ([]bars.Bar, error) {
	klines, err := b.rest.GetKlines(symbol, "1m", limit, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines for %s: %w", symbol, err)
	}
	out := make([]bars.Bar, 0, len(klines))
	for _, k := range klines {
		out = append(out, bars.Bar{
			TimestampMs: k.OpenTime,
			Open:        k.Open,
			High:        k.High,
			Low:         k.Low,
			Close:       k.Close,
			Volume:      k.Volume,
		})
	}
	return bars.GapFill(out), nil
}

// StreamTicks opens one book-ticker subscription per symbol and fans them
// into a single channel. A connection failure on any subscription closes
// the whole channel; MarketFeeder.Run treats that as a stream error and
// reconnects per its own backoff policy — StreamTicks itself never
// retries.
func (b *BinanceBroker) StreamTicks(ctx context.Context, symbols []string) (<-chan ticks.MarketData, error) {
	out := make(chan ticks.MarketData, 256)
	streamCtx, cancel := context.WithCancel(ctx)
	stops := make([]func(), 0, len(symbols))
	var wg sync.WaitGroup

	cleanup := func() {
		for _, stop := range stops {
			stop()
		}
	}

	for _, symbol := range symbols {
		bt, stop, err := b.stream.SubscribeBookTicker(streamCtx, symbol)
		if err != nil {
			cancel()
			cleanup()
			return nil, fmt.Errorf("binance: subscribe book ticker %s: %w", symbol, err)
		}
		stops = append(stops, stop)

		wg.Add(1)
		go func(symbol string, in <-chan market.BookTicker) {
			defer wg.Done()
			defer cancel() // one subscription ending ends the whole stream
			for bt := range in {
				mid := (bt.BidPrice + bt.AskPrice) / 2
				select {
				case out <- ticks.MarketData{
					Symbol:      symbol,
					Price:       mid,
					Spread:      bt.AskPrice - bt.BidPrice,
					TimestampMs: bt.Time,
				}:
				case <-streamCtx.Done():
					return
				}
			}
		}(symbol, bt)
	}

	go func() {
		defer cancel()
		<-streamCtx.Done()
		cleanup()
		wg.Wait()
		close(out)
	}()

	return out, nil
}

// SubmitOrder places a MARKET order; client_order_id idempotency is
// honored by Binance's newClientOrderId deduplication window.
func (b *BinanceBroker) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	res, err := b.spot.SubmitOrder(ctx, common.OrderRequest{
		Symbol:   req.Symbol,
		Side:     common.Side(req.Side),
		Type:     common.OrderTypeMarket,
		Qty:      req.Quantity,
		ClientID: req.ClientOrderID,
	})
	if err != nil {
		return OrderResult{}, fmt.Errorf("binance: submit order: %w", err)
	}
	return OrderResult{
		OrderID:  res.ExchangeOrderID,
		Status:   string(res.Status),
		ClientID: res.ClientID,
	}, nil
}

// GetBalances sums free+locked per asset across the spot account.
func (b *BinanceBroker) GetBalances(ctx context.Context) (map[string]float64, error) {
	info, err := b.spot.GetAccountInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: account info: %w", err)
	}
	out := make(map[string]float64, len(info.Balances))
	for _, bal := range info.Balances {
		free, _ := strconv.ParseFloat(bal.Free, 64)
		locked, _ := strconv.ParseFloat(bal.Locked, 64)
		out[bal.Asset] = free + locked
	}
	return out, nil
}

// GetPositions returns empty: spot trading carries no leveraged positions.
// Kept to satisfy the Broker interface rather than fabricating futures
// position data this venue does not have.
func (b *BinanceBroker) GetPositions(ctx context.Context) (map[string]Position, error) {
	return map[string]Position{}, nil
}
