// Command enginectl boots the trading core: it reads the env-var
// bootstrap config, loads the declarative engine document, wires the
// shared broker/risk/executor/predictor singletons, starts the
// EngineManager for every configured symbol, and serves the operator
// control surface until an interrupt arrives.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trading-core/internal/api"
	ibroker "trading-core/internal/broker"
	engineconfig "trading-core/internal/config"
	"trading-core/internal/engine"
	"trading-core/internal/events"
	"trading-core/internal/health"
	"trading-core/internal/manager"
	"trading-core/internal/order"
	"trading-core/internal/predictor"
	"trading-core/internal/recovery"
	"trading-core/internal/risk"
	"trading-core/internal/store"
	"trading-core/pkg/config"
)

func main() {
	envCfg, err := config.Load()
	if err != nil {
		log.Fatalf("enginectl: load env config: %v", err)
	}

	doc, err := engineconfig.Load(envCfg.EngineConfigPath)
	if err != nil {
		log.Printf("enginectl: %v — falling back to documented defaults", err)
		doc = engineconfig.Default()
	}
	symbols := doc.SymbolsToTrade
	if len(symbols) == 0 {
		symbols = envCfg.BinanceSymbols
	}

	broker := newBroker(envCfg)
	bus := events.NewBus()

	riskMgr := risk.NewManager(doc.RiskPolicy, doc.EngineDefaults.BaseEquityUsd)
	executor := order.NewExecutor(broker, riskMgr, bus, doc.Executor.RateRps, int(doc.Executor.RateRps*2), doc.Executor.ExposureLimitUsd)

	pred := predictor.New(doc.Predictor.Weights, doc.Predictor.ThresholdEntry)
	if err := pred.Load(predictor.ModelPaths{Tabular: doc.Paths.ModelTabular, Sequence: doc.Paths.ModelSequence}); err != nil {
		log.Printf("enginectl: predictor degraded: %v", err)
	}

	audit, err := store.Open(doc.Paths.AuditDB)
	if err != nil {
		log.Printf("enginectl: audit store disabled: %v", err)
		audit = nil
	} else {
		defer audit.Close()
	}

	engCfg := engine.Config{
		CycleInterval:       secToDuration(doc.EngineDefaults.CycleIntervalSec),
		QueueCapacity:       doc.EngineDefaults.QueueCapacity,
		ErrorSpikeThreshold: doc.EngineDefaults.ErrorSpikeThreshold,
		BootstrapBars:       engine.DefaultConfig().BootstrapBars,
		BrokerTimeout:       engine.DefaultConfig().BrokerTimeout,
	}
	healthCfg := health.Config{
		CheckInterval:       secToDuration(doc.Health.CheckIntervalSec),
		HeartbeatTimeout:    secToDuration(doc.Health.HeartbeatTimeoutSec),
		ErrorSpikeThreshold: doc.EngineDefaults.ErrorSpikeThreshold,
	}
	recoveryPolicy := recovery.Policy{
		MaxRestartsPerHour: doc.Recovery.MaxRestartsPerHour,
		BackoffBaseSec:     doc.Recovery.BackoffBaseSec,
	}

	mgr := manager.New(broker, riskMgr, executor, pred, engCfg, doc.Paths.LogsDir, doc.Paths.Registry, recoveryPolicy, healthCfg, bus, audit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.StartAll(ctx, symbols); err != nil {
		log.Fatalf("enginectl: StartAll: %v", err)
	}

	srv := api.NewServer(bus, mgr, executor, riskMgr, api.SystemMeta{
		DryRun:  envCfg.DryRun,
		Venue:   "binance",
		Symbols: symbols,
		Version: "dev",
	})
	go func() {
		addr := ":" + envCfg.Port
		log.Printf("enginectl: control surface listening on %s", addr)
		if err := srv.Start(addr); err != nil {
			log.Printf("enginectl: control surface stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("enginectl: shutting down")
	mgr.StopAll(30 * time.Second)
}

func newBroker(cfg *config.Config) ibroker.Broker {
	if cfg.DryRun || cfg.UseMockFeed {
		return ibroker.NewSimulatedBroker(cfg.DryRunInitialBalance, cfg.DryRunFeeRate)
	}
	return ibroker.NewBinanceBroker(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet)
}

func secToDuration(sec float64) time.Duration {
	if sec <= 0 {
		return time.Second
	}
	return time.Duration(sec * float64(time.Second))
}
