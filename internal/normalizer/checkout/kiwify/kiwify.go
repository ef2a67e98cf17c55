// Package kiwify normalizes Kiwify checkout webhooks. Order notifications
// (those carrying order_status) become transactions; everything else is an
// abandoned cart.
package kiwify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/enrich"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer"
	"github.com/Priya8975/commerce-webhook-pipeline/internal/normalizer/checkout"
	"github.com/shopspring/decimal"
)

// Name is the platform name Kiwify webhooks arrive under.
const Name = "kiwify"

const (
	createdAtLayout = "2006-01-02 15:04"
	defaultCurrency = "BRL"
)

var statusMap = map[string]domain.OrderStatus{
	"paid":            domain.OrderPaid,
	"approved":        domain.OrderPaid,
	"waiting_payment": domain.OrderWaitingPayment,
	"pending":         domain.OrderWaitingPayment,
	"refunded":        domain.OrderRefunded,
	"chargedback":     domain.OrderRefunded,
	"completed":       domain.OrderCompleted,
	"refused":         domain.OrderRefused,
	"cancelled":       domain.OrderCancelled,
	"canceled":        domain.OrderCancelled,
	"expired":         domain.OrderExpired,
	"abandoned":       domain.OrderAbandoned,
}

// MapStatus maps a Kiwify order status to the canonical set. Unknown and
// empty statuses map to status_not_mapped.
func MapStatus(s string) domain.OrderStatus {
	if status, ok := statusMap[strings.ToLower(strings.TrimSpace(s))]; ok {
		return status
	}
	return domain.OrderUnmapped
}

// Normalizer implements normalizer.Normalizer for Kiwify.
type Normalizer struct {
	checkout.Recorder
	geo    enrich.GeoLocator
	logger *slog.Logger
	now    func() time.Time
}

func New(store checkout.Store, geo enrich.GeoLocator, logger *slog.Logger) *Normalizer {
	if geo == nil {
		geo = enrich.NoopGeoLocator{}
	}
	return &Normalizer{
		Recorder: checkout.Recorder{Store: store},
		geo:      geo,
		logger:   logger,
		now:      time.Now,
	}
}

var _ normalizer.Normalizer = (*Normalizer)(nil)

// Normalize picks the record variant by the presence of order_status.
func (n *Normalizer) Normalize(ctx context.Context, payload json.RawMessage) (domain.CanonicalRecord, error) {
	var shape struct {
		OrderStatus *string `json:"order_status"`
	}
	if err := json.Unmarshal(payload, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", normalizer.ErrInvalidPayload, err)
	}

	if shape.OrderStatus == nil {
		return n.abandonedCart(ctx, payload)
	}
	return n.transaction(ctx, payload)
}

func (n *Normalizer) transaction(ctx context.Context, payload json.RawMessage) (*domain.Transaction, error) {
	var p orderPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding order: %v", normalizer.ErrInvalidPayload, err)
	}

	txID := p.OrderRef
	if txID == "" {
		txID = p.OrderID
	}
	if txID == "" || p.Product.ProductID == "" {
		return nil, fmt.Errorf("%w: order_ref and Product.product_id are required", normalizer.ErrInvalidPayload)
	}

	now := n.now().UTC()
	createdAt := now
	if p.CreatedAt != "" {
		t, err := parseCreatedAt(p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", normalizer.ErrInvalidPayload, err)
		}
		createdAt = t
	}

	currency := p.Commissions.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	originalStatus := ""
	if p.OrderStatus != nil {
		originalStatus = *p.OrderStatus
	}

	tx := &domain.Transaction{
		TransactionID:       txID,
		ProductID:           p.Product.ProductID,
		CreatedAt:           createdAt,
		UpdatedAt:           now,
		OrderDate:           createdAt,
		Currency:            currency,
		Status:              MapStatus(originalStatus),
		PaymentMethod:       p.PaymentMethod,
		UserEmail:           p.Customer.Email,
		UserName:            p.Customer.FullName,
		UserPhone:           enrich.NormalizePhone(p.Customer.Mobile),
		UserIP:              optional(p.Customer.IP),
		Geo:                 n.lookup(ctx, p.Customer.IP),
		ProductName:         p.Product.ProductName,
		ProductType:         p.ProductType,
		ProductPrice:        p.Commissions.ProductBasePrice.amount(),
		TransactionValue:    p.Commissions.ChargeAmount.amount(),
		TransactionFeeTotal: p.Commissions.KiwifyFee.amount(),
		TransactionNetValue: p.Commissions.MyCommission.amount(),
		Installments:        p.Installments,
		Quantity:            p.Quantity,
		OfferID:             optional(p.Product.OfferID),
		OfferName:           optional(p.Product.OfferName),
		Tracking:            p.TrackingParameters.toDomain(),
		ProducerName:        optional(p.Product.ProducerName),
		Subscription:        presentJSON(p.Subscription),
		OriginalPayment:     p.PaymentMethod,
		OriginalStatus:      originalStatus,
	}

	if aff := p.Commissions.affiliate(); aff != nil {
		data, err := json.Marshal(aff)
		if err != nil {
			return nil, fmt.Errorf("encoding affiliate: %w", err)
		}
		tx.Affiliate = data
		if aff.value.set {
			commission := aff.value.amount()
			tx.AffiliateCommission = &commission
		}
	}

	return tx, nil
}

func (n *Normalizer) abandonedCart(ctx context.Context, payload json.RawMessage) (*domain.AbandonedCart, error) {
	var p cartPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: decoding abandoned cart: %v", normalizer.ErrInvalidPayload, err)
	}

	var phone *string
	if p.Phone != "" {
		phone = optional(enrich.NormalizePhone(p.Phone))
	}

	return &domain.AbandonedCart{
		UserEmail:    optional(p.Email),
		UserPhone:    phone,
		UserDoc:      optional(p.Document),
		UserName:     optional(p.Name),
		ProductID:    optional(p.ProductID),
		ProductName:  optional(p.ProductName),
		CreatedAt:    n.now().UTC(),
		UserIP:       optional(p.IP),
		Geo:          n.lookup(ctx, p.IP),
		OfferName:    optional(p.OfferName),
		Status:       domain.OrderAbandoned,
		Tracking:     p.tracking.toDomain(),
		ProducerName: optional(p.ProducerName),
	}, nil
}

// lookup never fails the event; enrichment is best-effort.
func (n *Normalizer) lookup(ctx context.Context, ip string) domain.Geo {
	if ip == "" {
		return domain.Geo{}
	}
	geo, err := n.geo.Lookup(ctx, ip)
	if err != nil {
		n.logger.Warn("geo enrichment failed", "error", err, "platform", Name)
		return domain.Geo{}
	}
	return geo
}

func parseCreatedAt(s string) (time.Time, error) {
	for _, layout := range []string{createdAtLayout, "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized created_at %q", s)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func presentJSON(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil
	}
	return trimmed
}

// cents is a minor-unit amount that may arrive as a JSON number or string.
type cents struct {
	value decimal.Decimal
	set   bool
}

func (c *cents) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parsing amount %q: %w", s, err)
	}
	c.value, c.set = d, true
	return nil
}

// amount converts cents to the currency's major unit.
func (c cents) amount() decimal.Decimal {
	return c.value.Shift(-2)
}
