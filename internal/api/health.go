package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger checks connectivity to a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Version is reported by the health endpoint.
var Version = "1.0.0"

// HealthHandler returns the health check handler. Any failing dependency
// turns the response into a 503.
func HealthHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:       "healthy",
			Version:      Version,
			Dependencies: make(map[string]string, len(deps)),
		}
		code := http.StatusOK

		for name, dep := range deps {
			if err := dep.Ping(ctx); err != nil {
				resp.Dependencies[name] = "unhealthy: " + err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "healthy"
		}

		respondJSON(w, code, resp)
	}
}
