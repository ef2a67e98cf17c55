package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
)

// RawEventReader reads the raw event audit trail.
type RawEventReader interface {
	ListRawEvents(ctx context.Context, f store.RawEventFilter) ([]domain.RawEvent, error)
	GetRawEvent(ctx context.Context, id int64) (*domain.RawEvent, error)
}

// Replayer re-publishes a raw event onto the event log.
type Replayer interface {
	Publish(ctx context.Context, event *domain.RawEvent) (string, error)
}

type RawEventHandler struct {
	store    RawEventReader
	replayer Replayer
}

func NewRawEventHandler(s RawEventReader, replayer Replayer) *RawEventHandler {
	return &RawEventHandler{store: s, replayer: replayer}
}

func (h *RawEventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RawEventFilter{
		Status:         domain.RawEventStatus(q.Get("status")),
		PlatformFamily: q.Get("platform_family"),
		Platform:       q.Get("platform"),
		Limit:          queryLimit(r),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	events, err := h.store.ListRawEvents(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list raw events")
		return
	}

	respondJSON(w, http.StatusOK, events)
}

func (h *RawEventHandler) Get(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, event)
}

type replayResponse struct {
	RawEventID int64  `json:"raw_event_id"`
	MessageID  string `json:"message_id"`
	Status     string `json:"status"`
}

// Replay re-publishes a raw event. Already processed events need
// ?force=true because abandoned carts are not deduplicated.
func (h *RawEventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	event, ok := h.load(w, r)
	if !ok {
		return
	}

	if event.Status == domain.StatusProcessed && r.URL.Query().Get("force") != "true" {
		respondError(w, http.StatusConflict, "raw event already processed; use force=true to replay")
		return
	}

	messageID, err := h.replayer.Publish(r.Context(), event)
	if err != nil {
		respondError(w, http.StatusBadGateway, "failed to publish raw event")
		return
	}

	respondJSON(w, http.StatusAccepted, replayResponse{
		RawEventID: event.ID,
		MessageID:  messageID,
		Status:     string(domain.StatusForwarded),
	})
}

func (h *RawEventHandler) load(w http.ResponseWriter, r *http.Request) (*domain.RawEvent, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return nil, false
	}

	event, err := h.store.GetRawEvent(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get raw event")
		return nil, false
	}
	if event == nil {
		respondError(w, http.StatusNotFound, "raw event not found")
		return nil, false
	}
	return event, true
}
