package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/api"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/config"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/engine"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/enrich"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer/checkout"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer/checkout/kiwify"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/stream"
	ws "github.com/Priya8975/commerce-webhook-pipeline/internal/websocket"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/worker"
	"github.com/google/uuid"
)

// Runtime owns the shared connections and components of one process.
// Gateway and consumer binaries build it once and pick what they need.
type Runtime struct {
	Config    *config.Config
	Logger    *slog.Logger
	Postgres  *store.PostgresStore
	Redis     *store.RedisStore
	Stream    *stream.Log
	Breaker   *engine.CircuitBreaker
	Limiter   *engine.RateLimiter
	Publisher *engine.Publisher
}

// New connects to Postgres and Redis and builds the components shared by
// every process.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	pg, err := store.NewPostgres(ctx, cfg.Database.URL, store.PoolOptions{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	rdb, err := store.NewRedis(ctx, cfg.Redis.URL)
	if err != nil {
		pg.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	logger.Info("connected to Redis")

	log := stream.New(rdb.Client(), stream.Options{
		Name:   cfg.Stream.Name,
		Group:  cfg.Stream.Group,
		MaxLen: cfg.Stream.MaxLen,
	})

	return &Runtime{
		Config:    cfg,
		Logger:    logger,
		Postgres:  pg,
		Redis:     rdb,
		Stream:    log,
		Breaker:   engine.NewCircuitBreaker(rdb.Client(), logger),
		Limiter:   engine.NewRateLimiter(rdb.Client(), logger),
		Publisher: engine.NewPublisher(log, pg, logger),
	}, nil
}

// Close releases connections.
func (rt *Runtime) Close() {
	if err := rt.Redis.Close(); err != nil {
		rt.Logger.Warn("closing redis", "error", err)
	}
	rt.Postgres.Close()
}

// GeoLocator returns the guarded geo client, or a no-op when disabled.
func (rt *Runtime) GeoLocator() enrich.GeoLocator {
	cfg := rt.Config.Geo
	if !cfg.Enabled {
		return enrich.NoopGeoLocator{}
	}
	return enrich.NewGuardedGeoLocator(
		enrich.NewHTTPGeoLocator(cfg.BaseURL, cfg.Token, cfg.Timeout),
		rt.Redis.Client(),
		rt.Limiter,
		rt.Breaker,
		enrich.GuardOptions{CacheTTL: cfg.CacheTTL, RateLimitPerSecond: cfg.RateLimitPerSecond},
		rt.Logger,
	)
}

// Registry registers every supported platform normalizer.
func (rt *Runtime) Registry() (*normalizer.Registry, error) {
	registry := normalizer.NewRegistry()
	geo := rt.GeoLocator()

	if err := registry.Register(checkout.Family, kiwify.Name, kiwify.New(rt.Postgres, geo, rt.Logger)); err != nil {
		return nil, err
	}

	for _, key := range registry.Keys() {
		rt.Logger.Info("normalizer registered", "platform_family", key.Family, "platform", key.Name)
	}
	return registry, nil
}

// RunGateway serves webhook ingress and the admin API until ctx is
// cancelled, then shuts the server down and drains in-flight ingest jobs.
func (rt *Runtime) RunGateway(ctx context.Context) error {
	cfg := rt.Config

	hub := ws.NewHub(rt.Logger)
	go hub.Run(ctx)
	go func() {
		if err := hub.Relay(ctx, rt.Redis.Client(), ws.EventsChannel); err != nil && !errors.Is(err, context.Canceled) {
			rt.Logger.Error("pipeline event relay stopped", "error", err)
		}
	}()

	registry, err := rt.Registry()
	if err != nil {
		return fmt.Errorf("building normalizer registry: %w", err)
	}

	pool := worker.NewPool(cfg.Ingest.Workers, cfg.Ingest.QueueSize, rt.Logger)
	pool.Start(ctx)
	ingestor := worker.NewIngestor(rt.Postgres, rt.Publisher, pool, cfg.Ingest.Timeout, rt.Logger)

	router := api.NewRouter(api.Deps{
		Store:     rt.Postgres,
		Ingestor:  ingestor,
		Platforms: registry,
		Replayer:  rt.Publisher,
		Stream:    rt.Stream,
		Breaker:   rt.Breaker,
		Hub:       hub,
		Health: map[string]api.Pinger{
			"postgres": rt.Postgres,
			"redis":    rt.Redis,
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
		Logger:       rt.Logger,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.Logger.Info("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	rt.Logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.Logger.Error("server forced to shutdown", "error", err)
	}

	// Accepted webhooks were already acknowledged; finish recording them.
	pool.Stop()
	rt.Logger.Info("server stopped")
	return runErr
}

// RunConsumer runs the dispatcher and, when enabled, the reconciler until
// ctx is cancelled. The batch in flight at cancellation is drained.
func (rt *Runtime) RunConsumer(ctx context.Context) error {
	cfg := rt.Config

	registry, err := rt.Registry()
	if err != nil {
		return fmt.Errorf("building normalizer registry: %w", err)
	}

	if cfg.Reconciler.Enabled {
		reconciler := worker.NewReconciler(rt.Postgres, rt.Publisher, worker.ReconcilerOptions{
			Interval:  cfg.Reconciler.Interval,
			BatchSize: cfg.Reconciler.BatchSize,
			MinAge:    cfg.Reconciler.MinAge,
			ClaimTTL:  cfg.Reconciler.ClaimTTL,
		}, rt.Logger)
		go reconciler.Start(ctx)
	}

	processor := worker.NewProcessor(registry, rt.Postgres, rt.Stream, ws.NewNotifier(rt.Redis.Client(), rt.Logger), worker.ProcessorOptions{
		MaxAttempts:   cfg.Dispatcher.MaxAttempts,
		HandleTimeout: cfg.Dispatcher.HandleTimeout,
	}, rt.Logger)

	dispatcher := worker.NewDispatcher(rt.Stream, processor, worker.DispatcherOptions{
		ConsumerName:  ConsumerName(cfg.Dispatcher.ConsumerName),
		BatchSize:     cfg.Dispatcher.BatchSize,
		BlockTimeout:  cfg.Dispatcher.BlockTimeout,
		ClaimMinIdle:  cfg.Dispatcher.ClaimMinIdle,
		ErrorBackoff:  cfg.Dispatcher.ErrorBackoff,
		DrainTimeout:  cfg.Dispatcher.DrainTimeout,
		PruneIdle:     cfg.Dispatcher.PruneIdle,
		PruneInterval: cfg.Dispatcher.PruneInterval,
	}, rt.Logger)

	return dispatcher.Run(ctx)
}

// ConsumerName returns name, or hostname plus a short random suffix so
// several consumers on one host stay distinct within the group.
func ConsumerName(name string) string {
	if name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "consumer"
	}
	return host + "-" + uuid.NewString()[:8]
}
