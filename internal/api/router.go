package api

import (
	"log/slog"
	"net/http"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the read side of persistence the admin API needs.
type Store interface {
	MetricsReader
	RawEventReader
	RecordReader
	DeadLetterStore
}

// Broadcaster serves live pipeline events over websockets.
type Broadcaster interface {
	ClientCounter
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
}

// Deps groups everything the router wires into handlers.
type Deps struct {
	Store        Store
	Ingestor     Acceptor
	Platforms    PlatformSet
	Replayer     Replayer
	Stream       StreamStats
	Breaker      BreakerStates
	Hub          Broadcaster
	Health       map[string]Pinger
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.Use(corsMiddleware)

	ingestHandler := NewIngestHandler(d.Ingestor, d.Platforms, d.MaxBodyBytes, d.Logger)
	rawHandler := NewRawEventHandler(d.Store, d.Replayer)
	recordHandler := NewRecordHandler(d.Store)
	dlqHandler := NewDeadLetterHandler(d.Store)
	dashHandler := NewDashboardHandler(d.Store, d.Stream, d.Breaker, d.Hub)

	r.Get("/ws", d.Hub.HandleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(d.Health))

		r.Route("/raw-events", func(r chi.Router) {
			r.Get("/", rawHandler.List)
			r.Get("/{id}", rawHandler.Get)
			r.Post("/{id}/replay", rawHandler.Replay)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", recordHandler.ListTransactions)
			r.Get("/{transaction_id}/{product_id}", recordHandler.GetTransaction)
		})

		r.Get("/abandoned-carts", recordHandler.ListAbandonedCarts)

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", dashHandler.Metrics)
	})

	// Webhook ingress. Registered last so the fixed prefixes above win.
	r.Post("/{platform_family}/{platform_name}", ingestHandler.Receive)

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

var _ Store = (*store.PostgresStore)(nil)
