package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/ledger-lake/internal/api/handlers"
	"github.com/dvloznov/ledger-lake/internal/api/middleware"
	"github.com/dvloznov/ledger-lake/internal/app"
	"github.com/dvloznov/ledger-lake/internal/config"
	"github.com/dvloznov/ledger-lake/internal/logger"
	"github.com/dvloznov/ledger-lake/internal/metrics"
	"github.com/dvloznov/ledger-lake/internal/pipeline"
	"github.com/dvloznov/ledger-lake/internal/runs/inmemory"
)

func main() {
	// Parse command-line flags
	var (
		configPath = flag.String("config", os.Getenv("LEDGER_CONFIG"), "Path to a YAML config file (or set LEDGER_CONFIG env)")
		addr       = flag.String("addr", "", "HTTP listen address, overrides api.addr")
	)
	flag.Parse()

	bootLog := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *addr != "" {
		cfg.API.Addr = *addr
	}

	// Initialize logger
	log, err := logger.NewWithOptions(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		bootLog.Fatal().Err(err).Msg("Failed to create logger")
	}

	ctx := logger.WithContext(context.Background(), log)

	rt, err := app.Build(ctx, cfg, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize publishers")
	}
	defer rt.Close()

	store, err := inmemory.NewStoreWithCapacity(cfg.API.MaxRuns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create run store")
	}

	routerCfg := handlers.RouterConfig{
		IngestMiddlewares: []func(http.Handler) http.Handler{
			middleware.RateLimit(cfg.API.RateLimitRPS, cfg.API.RateLimitBurst, log),
		},
	}
	if cfg.API.Metrics {
		m := metrics.New()
		recorders := pipeline.Recorders{m}
		if rt.Deps.Recorder != nil {
			recorders = append(recorders, rt.Deps.Recorder)
		}
		rt.Deps.Recorder = recorders
		routerCfg.Middlewares = append(routerCfg.Middlewares, m.Middleware)
		routerCfg.Metrics = m.Handler()
	}

	ingestHandler := handlers.NewIngestHandler(
		store,
		rt.Deps,
		handlers.Columns{Date: cfg.Mapping.Date, Partner: cfg.Mapping.Partner, Amount: cfg.Mapping.Amount},
		cfg.API.MaxUploadMB<<20,
		log,
	)
	runsHandler := handlers.NewRunsHandler(store, log)

	// Apply middleware
	handler := middleware.Chain(
		handlers.NewRouter(ingestHandler, runsHandler, routerCfg),
		middleware.Recovery(log),
		middleware.RequestID,
		middleware.Logger(log),
		middleware.CORS(cfg.API.AllowedOrigins),
		middleware.Auth(cfg.API.AuthToken),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.API.Addr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
