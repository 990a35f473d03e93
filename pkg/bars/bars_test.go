package bars

import "testing"

func TestGapFillNoGaps(t *testing.T) {
	in := []Bar{
		{TimestampMs: 0, Close: 1.5},
		{TimestampMs: 60_000, Close: 1.6},
	}
	out := GapFill(in)
	if len(out) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(out))
	}
}

func TestGapFillScenario5(t *testing.T) {
	in := []Bar{
		{TimestampMs: 0, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{TimestampMs: 180_000, Open: 1.6, High: 2, Low: 1.2, Close: 1.8, Volume: 12},
	}
	out := GapFill(in)
	if len(out) != 4 {
		t.Fatalf("expected 4 bars, got %d", len(out))
	}
	wantTs := []int64{0, 60_000, 120_000, 180_000}
	for i, b := range out {
		if b.TimestampMs != wantTs[i] {
			t.Fatalf("bar %d: timestamp = %d, want %d", i, b.TimestampMs, wantTs[i])
		}
	}
	for _, i := range []int{1, 2} {
		b := out[i]
		if b.Open != 1.5 || b.High != 1.5 || b.Low != 1.5 || b.Close != 1.5 || b.Volume != 0 {
			t.Fatalf("synthetic bar %d = %+v, want forward-carried close 1.5 with zero volume", i, b)
		}
	}
	for i := 0; i < len(out)-1; i++ {
		if out[i+1].TimestampMs-out[i].TimestampMs != minuteMs {
			t.Fatalf("bars %d,%d not exactly one minute apart", i, i+1)
		}
	}
}

func TestGapFillEmpty(t *testing.T) {
	if out := GapFill(nil); out != nil {
		t.Fatalf("expected nil passthrough, got %v", out)
	}
}
