package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/app"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/config"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	migrate := flag.Bool("migrate", true, "apply database migrations on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Logging, os.Stdout).With("service", "gateway")
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if *migrate {
		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		logger.Info("database migrations applied")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if err := rt.RunGateway(ctx); err != nil {
		logger.Error("gateway error", "error", err)
		os.Exit(1)
	}
}
