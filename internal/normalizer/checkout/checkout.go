// Package checkout holds what every checkout-platform normalizer shares:
// persistence of transactions and abandoned carts.
package checkout

import (
	"context"
	"fmt"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
)

// Family is the platform family checkout normalizers register under.
const Family = "checkout"

// Store is the persistence surface checkout normalizers write to.
type Store interface {
	UpsertTransaction(ctx context.Context, t *domain.Transaction) error
	InsertAbandonedCart(ctx context.Context, c *domain.AbandonedCart) error
}

// Recorder persists checkout records. Platform normalizers embed it to
// satisfy the Persist half of normalizer.Normalizer.
type Recorder struct {
	Store Store
}

// Persist upserts transactions on (transaction_id, product_id) and inserts
// abandoned carts.
func (r Recorder) Persist(ctx context.Context, record domain.CanonicalRecord) error {
	switch rec := record.(type) {
	case *domain.Transaction:
		if err := r.Store.UpsertTransaction(ctx, rec); err != nil {
			return fmt.Errorf("persisting transaction %s: %w", rec.BusinessKey(), err)
		}
	case *domain.AbandonedCart:
		if err := r.Store.InsertAbandonedCart(ctx, rec); err != nil {
			return fmt.Errorf("persisting abandoned cart: %w", err)
		}
	default:
		return fmt.Errorf("checkout cannot persist %T", record)
	}
	return nil
}
