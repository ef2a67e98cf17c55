package seed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer/checkout/kiwify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Deterministic(t *testing.T) {
	a := NewGenerator(42, 0.3)
	b := NewGenerator(42, 0.3)

	for i := 0; i < 10; i++ {
		pa, cartA, err := a.Next()
		require.NoError(t, err)
		pb, cartB, err := b.Next()
		require.NoError(t, err)
		assert.Equal(t, cartA, cartB)
		assert.JSONEq(t, string(pa), string(pb))
	}
}

func TestGenerator_PayloadsNormalize(t *testing.T) {
	g := NewGenerator(7, 0.5)
	n := kiwify.New(nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var orders, carts int
	for i := 0; i < 50; i++ {
		payload, isCart, err := g.Next()
		require.NoError(t, err)

		record, err := n.Normalize(context.Background(), json.RawMessage(payload))
		require.NoError(t, err, string(payload))

		if isCart {
			carts++
			assert.Equal(t, domain.KindAbandonedCart, record.Kind())
			continue
		}
		orders++
		tx, ok := record.(*domain.Transaction)
		require.True(t, ok)
		assert.NotEqual(t, domain.OrderUnmapped, tx.Status)
		assert.True(t, tx.TransactionValue.IsPositive())
		assert.Len(t, tx.UserPhone, 13)
		assert.Equal(t, "BRL", tx.Currency)
	}

	assert.Positive(t, orders)
	assert.Positive(t, carts)
}

func TestGenerator_CartRatioBounds(t *testing.T) {
	onlyOrders := NewGenerator(1, 0)
	onlyCarts := NewGenerator(1, 1.01)

	for i := 0; i < 20; i++ {
		_, isCart, err := onlyOrders.Next()
		require.NoError(t, err)
		assert.False(t, isCart)

		_, isCart, err = onlyCarts.Next()
		require.NoError(t, err)
		assert.True(t, isCart)
	}
}
