package api

import (
	"context"
	"net/http"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RecordReader reads canonical records.
type RecordReader interface {
	ListTransactions(ctx context.Context, status string, limit int) ([]domain.Transaction, error)
	GetTransaction(ctx context.Context, transactionID, productID string) (*domain.Transaction, error)
	ListAbandonedCarts(ctx context.Context, email string, limit int) ([]domain.AbandonedCart, error)
}

type RecordHandler struct {
	store RecordReader
}

func NewRecordHandler(s RecordReader) *RecordHandler {
	return &RecordHandler{store: s}
}

func (h *RecordHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")

	txs, err := h.store.ListTransactions(r.Context(), status, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}

	respondJSON(w, http.StatusOK, txs)
}

func (h *RecordHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "transaction_id")
	productID := chi.URLParam(r, "product_id")

	tx, err := h.store.GetTransaction(r.Context(), txID, productID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}
	if tx == nil {
		respondError(w, http.StatusNotFound, "transaction not found")
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

func (h *RecordHandler) ListAbandonedCarts(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")

	carts, err := h.store.ListAbandonedCarts(r.Context(), email, queryLimit(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list abandoned carts")
		return
	}

	respondJSON(w, http.StatusOK, carts)
}
