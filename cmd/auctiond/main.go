package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askelund/auctiond/internal/api"
	"github.com/askelund/auctiond/internal/auctioneer"
	"github.com/askelund/auctiond/internal/auth"
	"github.com/askelund/auctiond/internal/clock"
	"github.com/askelund/auctiond/internal/config"
	"github.com/askelund/auctiond/internal/feed"
	"github.com/askelund/auctiond/internal/health"
	"github.com/askelund/auctiond/internal/store"
	"github.com/askelund/auctiond/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/askelund/auctiond/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Load configuration.
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup telemetry.
	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver.
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	// Event feed: NATS when enabled, otherwise discard.
	var publisher feed.Publisher = feed.Nop{}
	if cfg.Feed.Enabled {
		natsFeed, feedErr := feed.Connect(cfg.Feed.URL, cfg.Feed.SubjectPrefix)
		if feedErr != nil {
			return fmt.Errorf("connecting feed: %w", feedErr)
		}
		defer func() {
			if closeErr := natsFeed.Close(); closeErr != nil {
				logger.Error("feed shutdown error", slog.Any("error", closeErr))
			}
		}()
		publisher = natsFeed
		logger.InfoContext(ctx, "event feed connected", slog.String("url", cfg.Feed.URL))
	}

	// Signer verification: a static allowlist when configured, otherwise
	// every caller is trusted (local runs).
	var verifier auth.Verifier = auth.AllowAll{}
	if len(cfg.Auth.AllowedSigners) > 0 {
		signers := make(auth.Static, len(cfg.Auth.AllowedSigners))
		for _, s := range cfg.Auth.AllowedSigners {
			signers[s] = true
		}
		verifier = signers
	}

	svc := auctioneer.New(repos.Ledger, repos.Events, verifier, publisher, logger, tp.TracerProvider, clk)

	// Setup health checks.
	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	router := api.NewHandler(svc, logger).Routes()
	router.HandleFunc("/healthz", healthHandler.LivenessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthHandler.ReadinessHandler()).Methods(http.MethodGet)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
		}
	}()

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

	// Wait for shutdown signal.
	<-ctx.Done()
	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
