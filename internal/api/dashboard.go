package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/engine"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
)

// MetricsReader returns aggregated database statistics.
type MetricsReader interface {
	GetPipelineMetrics(ctx context.Context) (*store.PipelineMetrics, error)
}

// StreamStats reports the state of the durable event log.
type StreamStats interface {
	Len(ctx context.Context) (int64, error)
	Pending(ctx context.Context) (int64, error)
}

// BreakerStates reports circuit breaker state per dependency.
type BreakerStates interface {
	GetState(ctx context.Context, name string) engine.CircuitBreakerState
}

// ClientCounter reports connected dashboard clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	store   MetricsReader
	stream  StreamStats
	breaker BreakerStates
	hub     ClientCounter
}

func NewDashboardHandler(s MetricsReader, stream StreamStats, breaker BreakerStates, hub ClientCounter) *DashboardHandler {
	return &DashboardHandler{store: s, stream: stream, breaker: breaker, hub: hub}
}

type metricsResponse struct {
	store.PipelineMetrics
	StreamLength     int64                       `json:"stream_length"`
	PendingMessages  int64                       `json:"pending_messages"`
	WebSocketClients int                         `json:"websocket_clients"`
	GeoLookup        *engine.CircuitBreakerState `json:"geo_lookup,omitempty"`
}

// Metrics returns aggregated pipeline metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetPipelineMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}

	// Stream figures are best-effort; a Redis blip should not hide the rest.
	streamLen, err := h.stream.Len(r.Context())
	if err != nil {
		streamLen = 0
	}
	pending, err := h.stream.Pending(r.Context())
	if err != nil {
		pending = 0
	}

	resp := metricsResponse{
		PipelineMetrics:  *m,
		StreamLength:     streamLen,
		PendingMessages:  pending,
		WebSocketClients: h.hub.ClientCount(),
	}
	if h.breaker != nil {
		state := h.breaker.GetState(r.Context(), "geo")
		resp.GeoLookup = &state
	}

	respondJSON(w, http.StatusOK, resp)
}
