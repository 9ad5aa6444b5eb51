package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aitrader/engine/internal/broadcast"
	"github.com/aitrader/engine/internal/config"
	"github.com/aitrader/engine/internal/database"
	"github.com/aitrader/engine/internal/decision"
	"github.com/aitrader/engine/internal/exchange"
	"github.com/aitrader/engine/internal/httpapi"
	"github.com/aitrader/engine/internal/market"
	"github.com/aitrader/engine/internal/oracle"
	"github.com/aitrader/engine/internal/repository"
	"github.com/aitrader/engine/internal/scheduler"
	"github.com/aitrader/engine/internal/snapshot"
	"github.com/aitrader/engine/internal/strategy"
	"github.com/aitrader/engine/internal/telemetry"
	"github.com/aitrader/engine/internal/trading"
	"github.com/aitrader/engine/pkg/logger"
)

// appStatus implements internal/httpapi.StatusSource: a thin read-only view
// over the long-lived components main wires together, reported at /status.
type appStatus struct {
	startedAt time.Time
	telemetry *telemetry.Log
}

func (s *appStatus) Status() map[string]interface{} {
	return map[string]interface{}{
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"recent_events":  s.telemetry.Recent("", "", 20),
	}
}

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting AI trading engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	tel := telemetry.New(log)

	accountRepo := repository.NewAccountRepository(db.Conn(), log)
	assetSnapshotRepo := repository.NewAssetSnapshotRepository(db.Conn(), log)
	decisionLogRepo := repository.NewDecisionLogRepository(db.Conn(), log)
	promptTemplateRepo := repository.NewPromptTemplateRepository(db.Conn(), log)
	strategyConfigRepo := repository.NewStrategyConfigRepository(db.Conn(), log)
	tickRepo := repository.NewTickRepository(db.Conn(), log)

	if err := decision.SeedDefaults(promptTemplateRepo); err != nil {
		log.Fatal().Err(err).Msg("failed to seed factory prompt templates")
	}

	exchangeClient := exchange.New(exchange.Config{
		BaseURL:        cfg.BrokerBaseURL,
		RateInterval:   time.Duration(cfg.BrokerRateIntervalSeconds) * time.Second,
		CacheTTL:       time.Duration(cfg.BrokerCacheTTLSeconds) * time.Second,
		RequestTimeout: 10 * time.Second,
	}, log)

	priceCache := market.NewPriceCache(
		time.Duration(cfg.PriceCacheTTLSeconds)*time.Second,
		time.Duration(cfg.PriceHistorySeconds)*time.Second,
	)
	bus := market.NewBus(log)
	stream := market.NewStream(
		cfg.MarketStreamSymbols,
		time.Duration(cfg.MarketStreamIntervalSeconds*float64(time.Second)),
		time.Duration(cfg.MarketStreamRetentionSeconds)*time.Second,
		exchangeClient,
		priceCache,
		bus,
		tickRepo,
		log,
	)

	sched := scheduler.New(log)

	// The Hub is constructed before the Asset Snapshot Service it will
	// eventually publish through (the service, in turn, needs the Hub as
	// its own Publisher) — the cycle is broken with SetSnapshotProvider
	// once the service exists, below.
	hub := broadcast.New(sched, nil, cfg.BroadcastSnapshotIntervalSecs, log)

	executor := trading.New(exchangeClient, priceCache, hub, cfg.CommissionRate, cfg.MinCommission, log)

	snapshotService := snapshot.New(snapshot.Config{
		Accounts:      accountRepo,
		Portfolio:     exchangeClient,
		Prices:        priceCache,
		Repo:          assetSnapshotRepo,
		Publisher:     hub,
		Telemetry:     tel,
		RetentionDays: cfg.AssetSnapshotRetentionDays,
	}, log)
	hub.SetSnapshotProvider(snapshotService)

	oracleClient := oracle.New(oracle.Config{
		RequestTimeout: time.Duration(cfg.OracleRequestTimeoutSeconds) * time.Second,
		MaxRetries:     cfg.OracleMaxRetries,
		BackoffBase:    time.Duration(cfg.OracleBackoffBaseSeconds * float64(time.Second)),
	}, log)

	pipeline := decision.New(decision.Config{
		Accounts:       accountRepo,
		Portfolio:      exchangeClient,
		Prices:         priceCache,
		Prompts:        promptTemplateRepo,
		Oracle:         oracleClient,
		Logs:           decisionLogRepo,
		Executor:       executor,
		Publisher:      hub,
		Telemetry:      tel,
		CommissionRate: cfg.CommissionRate,
		MinCommission:  cfg.MinCommission,
	}, log)

	strategyManager := strategy.New(accountRepo, strategyConfigRepo, pipeline, tel, log)

	httpServer := httpapi.New(httpapi.Config{
		Port:    cfg.Port,
		Log:     log,
		DevMode: cfg.DevMode,
		Status:  &appStatus{startedAt: time.Now(), telemetry: tel},
	})

	sched.Start()
	snapshotService.Start(bus)
	strategyManager.Start(bus)

	go stream.Run(context.Background())

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("ops http surface failed")
		}
	}()
	httpServer.MarkReady()

	log.Info().Int("port", cfg.Port).Strs("symbols", cfg.MarketStreamSymbols).Msg("engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// C2 stops emitting first so no further triggers or revaluations start
	// after this point; in-flight decision/execution goroutines (C4's
	// per-account single-flight) are allowed to finish on their own.
	stream.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("ops http surface forced to shutdown")
	}

	sched.Stop()

	log.Info().Msg("shutdown complete")
}
