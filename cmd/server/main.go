package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/config"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/accounting"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/copytrading"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/liquidity"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/marketmaker"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/matching"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/oracle"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/positions"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/settlement"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/social"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/scheduler"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/server"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info"})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting exchange core")

	// Initialize database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Core services
	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	accountingSvc := accounting.NewService(accounting.NewRepository(db, log), log)
	eventStore := events.NewStore(db, log)
	positionsSvc := positions.NewService(eventStore, log)
	books := orderbook.NewStore()
	registry := oracle.NewRegistry()

	socialSvc := social.NewService(social.NewRepository(db, log), log)
	if err := socialSvc.Load(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to load follow graph")
	}

	matchingEngine := matching.NewEngine(db, books, registry, ledgerSvc, accountingSvc, eventStore, socialSvc, log)
	copyTradingEngine := copytrading.NewEngine(ledgerSvc, cfg.SystemOperatorID, log)

	// Oracle dispatches celebrity signals into the copy-trading engine and
	// resolves the settlement service lazily on outcome-reached.
	baseOracle := oracle.NewBaseService("oracle-celebrity", registry, books, eventStore, log)
	celebrityOracle := oracle.NewCelebrityService(baseOracle)
	celebrityOracle.Subscribe(copyTradingEngine.HandleSignal)

	autoSettlement := settlement.NewAutoSettlement(ledgerSvc, copyTradingEngine, log)
	celebrityOracle.SetSettlementProvider(func() oracle.Settler { return autoSettlement })

	resolver := settlement.NewMarketResolver(db, accountingSvc, log)
	liquiditySvc := liquidity.NewService(liquidity.Settings{}, log)
	hub := server.NewHub(log)

	// Every settled fill feeds the trade-matched topic.
	matchingEngine.SetMatchHook(func(outcomeID string, m domain.MatchResult) {
		hub.Broadcast(server.TradeBroadcast{
			MarketID: outcomeID,
			Price:    m.Price,
			Quantity: m.Quantity,
			Side:     string(domain.SideAsk),
		})
	})

	// Initialize scheduler
	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if cfg.MarketMakerEnabled {
		job := marketmaker.NewJob(books, matchingEngine, baseOracle, ledgerSvc, cfg.SystemOperatorID, log)
		if err := sched.AddJob(cfg.MarketMakerCron, job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register market maker job")
		}
	}
	if err := sched.AddJob("@every 5m", oracle.NewExpirySweep(baseOracle, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register expiry sweep")
	}

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		Config:  cfg,
		DevMode: cfg.DevMode,

		Ledger:      ledgerSvc,
		Accounting:  accountingSvc,
		Books:       books,
		Events:      eventStore,
		Positions:   positionsSvc,
		Social:      socialSvc,
		Matching:    matchingEngine,
		CopyTrading: copyTradingEngine,
		Oracle:      celebrityOracle,
		Settlement:  autoSettlement,
		Resolver:    resolver,
		Liquidity:   liquiditySvc,
		Hub:         hub,
	})

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
