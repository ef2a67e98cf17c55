package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/jackc/pgx/v5"
)

const transactionColumns = `transaction_id, product_id, created_at, updated_at, order_date, currency, status,
	payment_method, user_email, user_name, user_phone, user_country, user_ip, user_city, user_region,
	user_postal_code, product_name, product_type, product_price, transaction_value, transaction_fee_total,
	transaction_net_value, installments, quantity, offer_id, offer_name, utm_source, utm_medium,
	utm_campaign, utm_content, utm_term, utm_target, sck, src, cycle, producer_name, affiliate,
	subscription, affiliate_commission, audit_original_payment_method, audit_original_status`

// UpsertTransaction inserts t or, when (transaction_id, product_id) already
// exists, overwrites only status and updated_at. Financial and customer
// facts keep the values of the first write, which makes redelivery safe.
func (s *PostgresStore) UpsertTransaction(ctx context.Context, t *domain.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, NOW(), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35, $36, $37,
			$38, $39, $40)
		ON CONFLICT (transaction_id, product_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = NOW()
	`,
		t.TransactionID, t.ProductID, t.CreatedAt, t.OrderDate, t.Currency, t.Status,
		t.PaymentMethod, t.UserEmail, t.UserName, t.UserPhone,
		nullIfEmpty(t.Geo.Country), t.UserIP, nullIfEmpty(t.Geo.City), nullIfEmpty(t.Geo.Region),
		nullIfEmpty(t.Geo.PostalCode), t.ProductName, t.ProductType, t.ProductPrice,
		t.TransactionValue, t.TransactionFeeTotal, t.TransactionNetValue, t.Installments, t.Quantity,
		t.OfferID, t.OfferName, t.Tracking.UTMSource, t.Tracking.UTMMedium, t.Tracking.UTMCampaign,
		t.Tracking.UTMContent, t.Tracking.UTMTerm, t.Tracking.UTMTarget, t.Tracking.SCK, t.Tracking.SRC,
		t.Cycle, t.ProducerName, nullJSON(t.Affiliate), nullJSON(t.Subscription), t.AffiliateCommission,
		nullIfEmpty(t.OriginalPayment), nullIfEmpty(t.OriginalStatus),
	)
	if err != nil {
		return fmt.Errorf("upserting transaction %s/%s: %w", t.TransactionID, t.ProductID, err)
	}
	return nil
}

func scanTransaction(row pgx.Row, t *domain.Transaction) error {
	var country, city, region, postal, origPayment, origStatus *string
	err := row.Scan(
		&t.TransactionID, &t.ProductID, &t.CreatedAt, &t.UpdatedAt, &t.OrderDate, &t.Currency, &t.Status,
		&t.PaymentMethod, &t.UserEmail, &t.UserName, &t.UserPhone, &country, &t.UserIP, &city, &region,
		&postal, &t.ProductName, &t.ProductType, &t.ProductPrice, &t.TransactionValue, &t.TransactionFeeTotal,
		&t.TransactionNetValue, &t.Installments, &t.Quantity, &t.OfferID, &t.OfferName,
		&t.Tracking.UTMSource, &t.Tracking.UTMMedium, &t.Tracking.UTMCampaign, &t.Tracking.UTMContent,
		&t.Tracking.UTMTerm, &t.Tracking.UTMTarget, &t.Tracking.SCK, &t.Tracking.SRC, &t.Cycle,
		&t.ProducerName, &t.Affiliate, &t.Subscription, &t.AffiliateCommission, &origPayment, &origStatus,
	)
	if err != nil {
		return err
	}
	t.Geo = domain.Geo{
		Country:    deref(country),
		City:       deref(city),
		Region:     deref(region),
		PostalCode: deref(postal),
	}
	t.OriginalPayment = deref(origPayment)
	t.OriginalStatus = deref(origStatus)
	return nil
}

func (s *PostgresStore) GetTransaction(ctx context.Context, transactionID, productID string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := scanTransaction(s.pool.QueryRow(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE transaction_id = $1 AND product_id = $2
	`, transactionID, productID), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying transaction: %w", err)
	}
	return &t, nil
}

// ListTransactions returns the most recently updated transactions, optionally
// filtered by status.
func (s *PostgresStore) ListTransactions(ctx context.Context, status string, limit int) ([]domain.Transaction, error) {
	q := newSelect(`SELECT ` + transactionColumns + ` FROM transactions`)
	if status != "" {
		q.where("status = %s", status)
	}
	q.orderBy("updated_at DESC")
	q.limit(limit)

	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	txs := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func nullJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
