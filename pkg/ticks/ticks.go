// Package ticks holds the MarketData record shared by the broker's stream
// capability, SymbolQueue, and every TradingEngine. It is a leaf package
// deliberately kept free of any internal/ dependency so that queue,
// market, and engine can all import it without a cycle.
package ticks

// AuxiliaryFields carries out-of-band context the feeder or an upstream
// component attaches to a tick: funding rate, open interest, and a
// precomputed sentiment placeholder in [-1, 1]. The core never fetches
// sentiment synchronously on the hot path (see SPEC_FULL.md §12).
type AuxiliaryFields struct {
	FundingRate        float64 `json:"funding_rate,omitempty"`
	OpenInterest       float64 `json:"open_interest,omitempty"`
	SentimentPlaceholder float64 `json:"sentiment_placeholder,omitempty"`
}

// MarketData is one normalized, immutable tick.
type MarketData struct {
	Symbol      string          `json:"symbol"`
	Price       float64         `json:"price"`
	Spread      float64         `json:"spread"`
	Volume      float64         `json:"volume"`
	TimestampMs int64           `json:"timestamp_ms"`
	Auxiliary   AuxiliaryFields `json:"auxiliary_fields"`
}
