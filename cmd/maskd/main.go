package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-masker/internal/api"
	"github.com/raaihank/pii-masker/internal/audit"
	"github.com/raaihank/pii-masker/internal/config"
	"github.com/raaihank/pii-masker/internal/logger"
	"github.com/raaihank/pii-masker/internal/privacy"
	"github.com/raaihank/pii-masker/internal/recorder"
)

var (
	version = api.Version
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
		healthCheck = flag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = flag.String("health-url", "http://localhost:8080/health", "URL used by -health-check")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pii-masker %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(recorder.LoggerConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting pii-masker",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.String("config_file", loader.ConfigFileUsed()),
		zap.Int("port", cfg.Server.Port),
	)

	rec, err := recorder.Open(cfg.Stats, log)
	if err != nil {
		log.Fatal("Failed to open stats backend", zap.Error(err))
	}
	defer rec.Close()

	masker, err := privacy.New(cfg.Privacy, rec, log.WithComponent("privacy"))
	if err != nil {
		log.Fatal("Failed to create masker", zap.Error(err))
	}

	// Only the privacy section is reloaded; server and backend changes need a restart.
	if loader.ConfigFileUsed() != "" {
		masker.WatchConfig(loader)
	}

	server := api.New(cfg, masker, rec, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if store, ok := rec.(*audit.Store); ok && cfg.Stats.Postgres.Retention > 0 {
		go store.RunRetention(ctx, cfg.Stats.Postgres.Retention, time.Hour)
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- server.Start(ctx)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding requests 30 seconds to complete
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Stop(shutdownCtx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
		}
		cancel()

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against a running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
}
