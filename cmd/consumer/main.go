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
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	consumerName := flag.String("name", "", "consumer name within the group (overrides dispatcher.consumer_name)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *consumerName != "" {
		cfg.Dispatcher.ConsumerName = *consumerName
	}

	logger := app.NewLogger(cfg.Logging, os.Stdout).With("service", "consumer")
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer rt.Close()

	if err := rt.RunConsumer(ctx); err != nil {
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
	logger.Info("consumer stopped")
}
