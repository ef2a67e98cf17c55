package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/metrics"
	"github.com/go-chi/chi/v5"
)

// Acceptor schedules background ingestion of a webhook payload.
type Acceptor interface {
	Accept(platformFamily, platform string, payload []byte)
}

// PlatformSet reports which platforms have a registered normalizer.
type PlatformSet interface {
	Has(family, name string) bool
}

// IngestHandler is the webhook receiver. It acknowledges as soon as the body
// parses as a JSON object; recording and publishing happen out of band.
type IngestHandler struct {
	ingestor  Acceptor
	platforms PlatformSet
	maxBody   int64
	logger    *slog.Logger
}

func NewIngestHandler(ingestor Acceptor, platforms PlatformSet, maxBody int64, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{ingestor: ingestor, platforms: platforms, maxBody: maxBody, logger: logger}
}

type acceptedResponse struct {
	Status string `json:"status"`
}

func (h *IngestHandler) Receive(w http.ResponseWriter, r *http.Request) {
	family := chi.URLParam(r, "platform_family")
	platform := chi.URLParam(r, "platform_name")

	body := io.Reader(r.Body)
	if h.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		msg := "failed to read request body"
		if errors.As(err, &tooLarge) {
			msg = "request body too large"
		}
		h.reject(w, family, platform, msg)
		return
	}

	if !isJSONObject(payload) {
		h.reject(w, family, platform, "body must be a JSON object")
		return
	}

	h.ingestor.Accept(family, platform, payload)

	h.count(family, platform, "accepted")
	respondJSON(w, http.StatusOK, acceptedResponse{Status: "accepted"})
}

func (h *IngestHandler) reject(w http.ResponseWriter, family, platform, msg string) {
	h.count(family, platform, "rejected")
	h.logger.Warn("rejected webhook", "platform_family", family, "platform", platform, "reason", msg)
	respondError(w, http.StatusBadRequest, msg)
}

// count records a request. Unregistered platforms share one label pair.
func (h *IngestHandler) count(family, platform, status string) {
	if h.platforms == nil || !h.platforms.Has(family, platform) {
		family, platform = metrics.UnknownPlatform, metrics.UnknownPlatform
	}
	metrics.IngestRequests.WithLabelValues(family, platform, status).Inc()
}

func isJSONObject(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}
