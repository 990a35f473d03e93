// Package bars holds the minute-OHLCV aggregate shared by the broker's
// historical capability and every TradingEngine's rolling feature window.
package bars

const minuteMs = 60_000

// Bar is one minute-aligned OHLCV aggregate.
type Bar struct {
	TimestampMs int64   `json:"timestamp_ms"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// GapFill walks a chronologically ascending OHLCV sequence and inserts
// synthetic minute bars wherever two adjacent bars are more than one minute
// apart. A synthetic bar carries open=high=low=close=last_close and
// volume=0, per the forward-carry contract. Input is assumed sorted by
// TimestampMs ascending; callers that cannot guarantee this must sort first.
func GapFill(in []Bar) []Bar {
	if len(in) == 0 {
		return in
	}
	out := make([]Bar, 0, len(in))
	out = append(out, in[0])
	for i := 1; i < len(in); i++ {
		prev := out[len(out)-1]
		cur := in[i]
		gap := cur.TimestampMs - prev.TimestampMs
		for gap > minuteMs {
			synthetic := Bar{
				TimestampMs: prev.TimestampMs + minuteMs,
				Open:        prev.Close,
				High:        prev.Close,
				Low:         prev.Close,
				Close:       prev.Close,
				Volume:      0,
			}
			out = append(out, synthetic)
			prev = synthetic
			gap = cur.TimestampMs - prev.TimestampMs
		}
		out = append(out, cur)
	}
	return out
}
