package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/store"
	"github.com/go-chi/chi/v5"
)

// DeadLetterStore reads and resolves dead letters.
type DeadLetterStore interface {
	ListDeadLetters(ctx context.Context, platform string, resolved bool, limit int) ([]domain.DeadLetter, error)
	GetDeadLetter(ctx context.Context, id int64) (*domain.DeadLetter, error)
	ResolveDeadLetter(ctx context.Context, id int64, resolvedBy string) error
}

type DeadLetterHandler struct {
	store DeadLetterStore
}

func NewDeadLetterHandler(s DeadLetterStore) *DeadLetterHandler {
	return &DeadLetterHandler{store: s}
}

func (h *DeadLetterHandler) List(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	resolved := r.URL.Query().Get("resolved") == "true"

	letters, err := h.store.ListDeadLetters(r.Context(), platform, resolved, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list dead letters")
		return
	}

	respondJSON(w, http.StatusOK, letters)
}

func (h *DeadLetterHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	letter, err := h.store.GetDeadLetter(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get dead letter")
		return
	}
	if letter == nil {
		respondError(w, http.StatusNotFound, "dead letter not found")
		return
	}

	respondJSON(w, http.StatusOK, letter)
}

type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

func (h *DeadLetterHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.ResolvedBy == "" {
		req.ResolvedBy = "manual"
	}

	if err := h.store.ResolveDeadLetter(r.Context(), id, req.ResolvedBy); err != nil {
		if errors.Is(err, store.ErrAlreadyResolved) {
			respondError(w, http.StatusNotFound, "dead letter not found or already resolved")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to resolve dead letter")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
