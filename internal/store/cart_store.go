package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
)

const cartColumns = `user_email, user_phone, user_doc, user_name, product_id, product_name, created_at,
	user_ip, user_country, user_city, user_region, user_postal_code, transaction_value, offer_id,
	offer_name, status, utm_source, utm_medium, utm_campaign, utm_content, utm_term, utm_target,
	sck, src, producer_name`

// InsertAbandonedCart always writes a new row. Carts have no natural key, so
// a redelivered cart event produces a duplicate.
func (s *PostgresStore) InsertAbandonedCart(ctx context.Context, c *domain.AbandonedCart) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO abandoned_carts (`+cartColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25)
	`,
		c.UserEmail, c.UserPhone, c.UserDoc, c.UserName, c.ProductID, c.ProductName, c.CreatedAt,
		c.UserIP, nullIfEmpty(c.Geo.Country), nullIfEmpty(c.Geo.City), nullIfEmpty(c.Geo.Region),
		nullIfEmpty(c.Geo.PostalCode), c.TransactionValue, c.OfferID, c.OfferName, c.Status,
		c.Tracking.UTMSource, c.Tracking.UTMMedium, c.Tracking.UTMCampaign, c.Tracking.UTMContent,
		c.Tracking.UTMTerm, c.Tracking.UTMTarget, c.Tracking.SCK, c.Tracking.SRC, c.ProducerName,
	)
	if err != nil {
		return fmt.Errorf("inserting abandoned cart: %w", err)
	}
	return nil
}

// ListAbandonedCarts returns the newest carts, optionally for one email.
func (s *PostgresStore) ListAbandonedCarts(ctx context.Context, email string, limit int) ([]domain.AbandonedCart, error) {
	q := newSelect(`SELECT ` + cartColumns + ` FROM abandoned_carts`)
	if email != "" {
		q.where("user_email = %s", email)
	}
	q.orderBy("created_at DESC")
	q.limit(limit)

	rows, err := s.pool.Query(ctx, q.sql(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("querying abandoned carts: %w", err)
	}
	defer rows.Close()

	carts := []domain.AbandonedCart{}
	for rows.Next() {
		var c domain.AbandonedCart
		var country, city, region, postal *string
		err := rows.Scan(
			&c.UserEmail, &c.UserPhone, &c.UserDoc, &c.UserName, &c.ProductID, &c.ProductName, &c.CreatedAt,
			&c.UserIP, &country, &city, &region, &postal, &c.TransactionValue, &c.OfferID,
			&c.OfferName, &c.Status, &c.Tracking.UTMSource, &c.Tracking.UTMMedium, &c.Tracking.UTMCampaign,
			&c.Tracking.UTMContent, &c.Tracking.UTMTerm, &c.Tracking.UTMTarget, &c.Tracking.SCK,
			&c.Tracking.SRC, &c.ProducerName,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning abandoned cart: %w", err)
		}
		c.Geo = domain.Geo{Country: deref(country), City: deref(city), Region: deref(region), PostalCode: deref(postal)}
		carts = append(carts, c)
	}
	return carts, rows.Err()
}
