// Package engine implements the TradingEngine: one instance per symbol,
// running the signal -> risk -> execution loop (spec §4.6).
package engine

import "time"

// EngineState is one of the states in spec §3's EngineState state machine.
type EngineState string

const (
	StateStopped  EngineState = "STOPPED"
	StateStarting EngineState = "STARTING"
	StateRunning  EngineState = "RUNNING"
	StatePaused   EngineState = "PAUSED"
	StateCrashed  EngineState = "CRASHED"
	StateStopping EngineState = "STOPPING"
)

// EngineHealth is the per-cycle observability record read by
// Manager.Status() and the HealthMonitor (spec §3, §4.6).
type EngineHealth struct {
	Symbol            string      `json:"symbol"`
	State             EngineState `json:"state"`
	UptimeSeconds     float64     `json:"uptime_seconds"`
	LastHeartbeatUnix int64       `json:"last_heartbeat_unix"`
	ErrorCount        int         `json:"error_count"`
	LastError         string      `json:"last_error,omitempty"`
	PositionCount     int         `json:"position_count"`
	DailyPnLPct       float64     `json:"daily_pnl_pct"`
}

// Config configures a single TradingEngine (spec §6 engine_defaults.*).
type Config struct {
	CycleInterval       time.Duration
	QueueCapacity       int
	ErrorSpikeThreshold int
	BootstrapBars       int
	BrokerTimeout       time.Duration
}

// DefaultConfig returns spec §6's documented engine_defaults.
func DefaultConfig() Config {
	return Config{
		CycleInterval:       time.Second,
		QueueCapacity:       128,
		ErrorSpikeThreshold: 10,
		BootstrapBars:       1500,
		BrokerTimeout:       10 * time.Second,
	}
}
