package risk

// Policy is RiskManager's configuration record (spec §4.4). Recognized
// options and their documented defaults.
type Policy struct {
	MaxDailyLossPct        float64 `yaml:"max_daily_loss_pct" json:"max_daily_loss_pct"`
	MaxSymbolRiskPct       float64 `yaml:"max_symbol_risk_pct" json:"max_symbol_risk_pct"`
	MaxConcurrentPositions int     `yaml:"max_concurrent_positions" json:"max_concurrent_positions"`
	VolTargetAnnual        float64 `yaml:"vol_target_annual" json:"vol_target_annual"`
	KellyCoeff             float64 `yaml:"kelly_coeff" json:"kelly_coeff"`
	MinNotionalUsd         float64 `yaml:"min_notional_usd" json:"min_notional_usd"`
	MaxNotionalUsd         float64 `yaml:"max_notional_usd" json:"max_notional_usd"`
}

// DefaultPolicy returns the documented defaults from spec §4.4. The daily
// loss default is 3.0%, not the 12% some source material suggested — see
// SPEC_FULL.md §12 open-question resolution 2.
func DefaultPolicy() Policy {
	return Policy{
		MaxDailyLossPct:        3.0,
		MaxSymbolRiskPct:       0.20,
		MaxConcurrentPositions: 5,
		VolTargetAnnual:        0.15,
		KellyCoeff:             0.25,
		MinNotionalUsd:         5,
		MaxNotionalUsd:         250,
	}
}

// EquityBook is the RiskManager's mutable portfolio accounting state
// (spec §3). Summary() returns a read-only copy of this shape.
type EquityBook struct {
	EquityStartDay    float64 `json:"equity_start_day"`
	EquityNow         float64 `json:"equity_now"`
	RealizedTodayPct  float64 `json:"realized_today_pct"`
	PositionsOpen     int     `json:"positions_open"`
	GlobalStopEngaged bool    `json:"global_stop_engaged"`
}
