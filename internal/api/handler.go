package api

import (
	"net/http"
	"time"

	"trading-core/internal/events"
	"trading-core/internal/manager"
	"trading-core/internal/order"
	"trading-core/internal/risk"

	"github.com/gin-gonic/gin"
)

// Server wires the operator control surface (spec §6) around the
// EngineManager, the shared OrderExecutor's kill switch, and the shared
// RiskManager's daily book. Authentication is an explicit spec Non-goal;
// this server is meant to sit behind an operator-only network boundary.
type Server struct {
	Router *gin.Engine
	Bus    *events.Bus

	Manager  *manager.Manager
	Executor *order.Executor
	Risk     *risk.Manager

	Meta SystemMeta
}

// SystemMeta describes static runtime info exposed to the operator.
type SystemMeta struct {
	DryRun  bool
	Venue   string
	Symbols []string
	Version string
}

// NewServer builds the control-surface HTTP server.
func NewServer(bus *events.Bus, mgr *manager.Manager, executor *order.Executor, riskMgr *risk.Manager, meta SystemMeta) *Server {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:   r,
		Bus:      bus,
		Manager:  mgr,
		Executor: executor,
		Risk:     riskMgr,
		Meta:     meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	v1 := s.Router.Group("/api/v1")
	{
		v1.GET("/status", s.statusAll)
		v1.GET("/status/:symbol", s.statusOne)

		v1.POST("/engines/:symbol/start", s.startEngine)
		v1.POST("/engines/:symbol/stop", s.stopEngine)
		v1.POST("/engines/:symbol/restart", s.restartEngine)

		v1.POST("/kill", s.killOn)
		v1.DELETE("/kill", s.killOff)

		v1.GET("/risk/summary", s.riskSummary)
		v1.POST("/risk/reset-day", s.riskResetDay)

		v1.POST("/orders", s.submitManualOrder)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"venue":   s.Meta.Venue,
		"dry_run": s.Meta.DryRun,
		"version": s.Meta.Version,
	})
}

// statusAll is spec §6 status_all: the fleet-wide EngineManager view.
func (s *Server) statusAll(c *gin.Context) {
	c.JSON(http.StatusOK, s.Manager.Status())
}

// statusOne is spec §6 status_one.
func (s *Server) statusOne(c *gin.Context) {
	symbol := c.Param("symbol")
	h, ok := s.Manager.StatusOne(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, h)
}

// startEngine is spec §6 start.
func (s *Server) startEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Manager.StartEngine(symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "action": "start"})
}

// stopEngine is spec §6 stop.
func (s *Server) stopEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Manager.StopEngine(symbol, 10*time.Second); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "action": "stop"})
}

// restartEngine is spec §6 restart — always honored, bypassing RecoveryPolicy.
func (s *Server) restartEngine(c *gin.Context) {
	symbol := c.Param("symbol")
	if err := s.Manager.RestartEngine(symbol); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "action": "restart"})
}

// killOn is spec §6 kill_on: engages the global kill switch immediately.
func (s *Server) killOn(c *gin.Context) {
	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)
	if body.Reason == "" {
		body.Reason = "operator_request"
	}
	s.Executor.EngageKillSwitch(body.Reason)
	c.JSON(http.StatusOK, gin.H{"kill_switch": true, "reason": body.Reason})
}

// killOff is spec §6 kill_off.
func (s *Server) killOff(c *gin.Context) {
	s.Executor.DisengageKillSwitch()
	c.JSON(http.StatusOK, gin.H{"kill_switch": false})
}

// riskSummary is spec §6 risk_summary: the shared RiskManager's equity book.
func (s *Server) riskSummary(c *gin.Context) {
	summary := s.Risk.Summary()
	c.JSON(http.StatusOK, gin.H{
		"equity_book":        summary,
		"global_stop":        s.Risk.GlobalStopEngaged(),
		"kill_switch":        s.Executor.KillSwitchEngaged(),
		"kill_switch_reason": s.Executor.KillSwitchReason(),
	})
}

// riskResetDay is spec §6 risk_reset_day: clears the daily loss latch at the
// operator's discretion. Does not clear the OrderExecutor's exposure-limit
// kill switch — that requires an explicit kill_off (spec §12).
func (s *Server) riskResetDay(c *gin.Context) {
	s.Risk.ResetDay()
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

// submitManualOrder is the spec §12 manual/operator order ingress: it
// enqueues a Signal that drains through the exact same OrderExecutor
// pipeline as an engine-generated one.
func (s *Server) submitManualOrder(c *gin.Context) {
	var body struct {
		Symbol          string  `json:"symbol" binding:"required"`
		Side            string  `json:"side" binding:"required"`
		SizeNotionalUsd float64 `json:"size_notional_usd" binding:"required"`
		PriceHint       float64 `json:"price_hint" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s.Manager.SubmitManualOrder(order.Signal{
		Symbol:          body.Symbol,
		Side:            body.Side,
		SizeNotionalUsd: body.SizeNotionalUsd,
		PriceHint:       body.PriceHint,
		GeneratedAt:     time.Now(),
	})
	c.JSON(http.StatusAccepted, gin.H{"queued": true})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
