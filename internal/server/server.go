package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/config"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/accounting"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/copytrading"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/liquidity"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/matching"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/oracle"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/positions"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/settlement"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/social"
)

// Config holds server configuration and the wired services.
type Config struct {
	Port    int
	Log     zerolog.Logger
	DB      *database.DB
	Config  *config.Config
	DevMode bool

	Ledger      *ledger.Service
	Accounting  *accounting.Service
	Books       *orderbook.Store
	Events      *events.Store
	Positions   *positions.Service
	Social      *social.Service
	Matching    *matching.Engine
	CopyTrading *copytrading.Engine
	Oracle      *oracle.CelebrityService
	Settlement  *settlement.AutoSettlement
	Resolver    *settlement.MarketResolver
	Liquidity   *liquidity.Service
	Hub         *Hub
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	db     *database.DB
	cfg    *config.Config

	ledger      *ledger.Service
	accounting  *accounting.Service
	books       *orderbook.Store
	events      *events.Store
	positions   *positions.Service
	social      *social.Service
	matching    *matching.Engine
	copyTrading *copytrading.Engine
	oracle      *oracle.CelebrityService
	settlement  *settlement.AutoSettlement
	resolver    *settlement.MarketResolver
	liquidity   *liquidity.Service
	hub         *Hub
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		log:         cfg.Log.With().Str("component", "server").Logger(),
		db:          cfg.DB,
		cfg:         cfg.Config,
		ledger:      cfg.Ledger,
		accounting:  cfg.Accounting,
		books:       cfg.Books,
		events:      cfg.Events,
		positions:   cfg.Positions,
		social:      cfg.Social,
		matching:    cfg.Matching,
		copyTrading: cfg.CopyTrading,
		oracle:      cfg.Oracle,
		settlement:  cfg.Settlement,
		resolver:    cfg.Resolver,
		liquidity:   cfg.Liquidity,
		hub:         cfg.Hub,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	// Trade-matched broadcast channel
	if s.hub != nil {
		s.router.Get("/ws", s.hub.ServeHTTP)
	}

	// API routes
	s.router.Route("/api", func(r chi.Router) {
		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Post("/create", s.handleWalletCreate)
			r.Get("/{id}/balance", s.handleWalletBalance)
			r.Post("/{id}/deposit", s.handleWalletDeposit)
		})

		r.Route("/secondary", func(r chi.Router) {
			r.Post("/order", s.handleSecondaryOrder)
			r.Post("/order/bulk", s.handleSecondaryOrderBulk)
			r.Get("/book/{marketId}", s.handleSecondaryBook)
			r.Delete("/orders/{marketId}/{operatorId}", s.handleCancelOrders)
		})

		r.Route("/markets", func(r chi.Router) {
			r.Post("/create", s.handleMarketCreate)
			r.Get("/active", s.handleMarketsActive)
			r.Get("/orderbook/{outcomeId}", s.handleMarketOrderbook)
		})

		r.Route("/celebrity", func(r chi.Router) {
			r.Post("/simulate", s.handleCelebritySimulate)
			r.Post("/outcome-reached", s.handleOutcomeReached)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/resolve-market", s.handleResolveMarket)
		})

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/position", s.handlePortfolioPosition)
			r.Get("/{accountId}", s.handlePortfolioHoldings)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Get("/market/{marketId}", s.handleAuditMarket)
			r.Get("/user/{userId}", s.handleAuditUser)
		})

		r.Route("/copy-trading", func(r chi.Router) {
			r.Post("/follow", s.handleFollow)
		})

		r.Route("/liquidity", func(r chi.Router) {
			r.Get("/quotes", s.handleLiquidityQuotes)
			r.Get("/settings", s.handleLiquiditySettings)
			r.Patch("/settings", s.handleLiquiditySettingsPatch)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
