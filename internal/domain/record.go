package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the closed set of canonical order states.
type OrderStatus string

const (
	OrderPaid           OrderStatus = "paid"
	OrderWaitingPayment OrderStatus = "waiting_payment"
	OrderRefunded       OrderStatus = "refunded"
	OrderCompleted      OrderStatus = "completed"
	OrderRefused        OrderStatus = "refused"
	OrderCancelled      OrderStatus = "cancelled"
	OrderExpired        OrderStatus = "expired"
	OrderAbandoned      OrderStatus = "abandoned"

	// OrderUnmapped is stored when the platform sends a status we do not know.
	OrderUnmapped OrderStatus = "status_not_mapped"
)

// RecordKind identifies a CanonicalRecord variant.
type RecordKind string

const (
	KindTransaction   RecordKind = "transaction"
	KindAbandonedCart RecordKind = "abandoned_cart"
)

// CanonicalRecord is a platform-agnostic business entity produced by a normalizer.
type CanonicalRecord interface {
	Kind() RecordKind
	// BusinessKey is the natural dedup key, empty when the variant has none.
	BusinessKey() string
}

// Geo holds best-effort IP enrichment. Empty fields mean the lookup was
// skipped or failed.
type Geo struct {
	Country    string `json:"country"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
}

// Transaction is keyed by (TransactionID, ProductID). After the first insert
// only Status and UpdatedAt may change.
type Transaction struct {
	TransactionID       string           `json:"transaction_id"`
	ProductID           string           `json:"product_id"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
	OrderDate           time.Time        `json:"order_date"`
	Currency            string           `json:"currency"`
	Status              OrderStatus      `json:"status"`
	PaymentMethod       string           `json:"payment_method"`
	UserEmail           string           `json:"user_email"`
	UserName            string           `json:"user_name"`
	UserPhone           string           `json:"user_phone"`
	UserIP              *string          `json:"user_ip,omitempty"`
	Geo                 Geo              `json:"geo"`
	ProductName         string           `json:"product_name"`
	ProductType         string           `json:"product_type"`
	ProductPrice        decimal.Decimal  `json:"product_price"`
	TransactionValue    decimal.Decimal  `json:"transaction_value"`
	TransactionFeeTotal decimal.Decimal  `json:"transaction_fee_total"`
	TransactionNetValue decimal.Decimal  `json:"transaction_net_value"`
	Installments        *int             `json:"installments,omitempty"`
	Quantity            *int             `json:"quantity,omitempty"`
	OfferID             *string          `json:"offer_id,omitempty"`
	OfferName           *string          `json:"offer_name,omitempty"`
	Tracking            Tracking         `json:"tracking"`
	Cycle               *int             `json:"cycle,omitempty"`
	ProducerName        *string          `json:"producer_name,omitempty"`
	Affiliate           json.RawMessage  `json:"affiliate,omitempty"`
	Subscription        json.RawMessage  `json:"subscription,omitempty"`
	AffiliateCommission *decimal.Decimal `json:"affiliate_commission,omitempty"`
	OriginalPayment     string           `json:"audit_original_payment_method"`
	OriginalStatus      string           `json:"audit_original_status"`
}

func (t *Transaction) Kind() RecordKind { return KindTransaction }

func (t *Transaction) BusinessKey() string { return t.TransactionID + ":" + t.ProductID }

// AbandonedCart has no natural key; every event becomes a new row.
type AbandonedCart struct {
	UserEmail        *string          `json:"user_email,omitempty"`
	UserPhone        *string          `json:"user_phone,omitempty"`
	UserDoc          *string          `json:"user_doc,omitempty"`
	UserName         *string          `json:"user_name,omitempty"`
	ProductID        *string          `json:"product_id,omitempty"`
	ProductName      *string          `json:"product_name,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UserIP           *string          `json:"user_ip,omitempty"`
	Geo              Geo              `json:"geo"`
	TransactionValue *decimal.Decimal `json:"transaction_value,omitempty"`
	OfferID          *string          `json:"offer_id,omitempty"`
	OfferName        *string          `json:"offer_name,omitempty"`
	Status           OrderStatus      `json:"status"`
	Tracking         Tracking         `json:"tracking"`
	ProducerName     *string          `json:"producer_name,omitempty"`
}

func (c *AbandonedCart) Kind() RecordKind { return KindAbandonedCart }

func (c *AbandonedCart) BusinessKey() string { return "" }

// Tracking holds attribution parameters.
type Tracking struct {
	UTMSource   *string `json:"utm_source,omitempty"`
	UTMMedium   *string `json:"utm_medium,omitempty"`
	UTMCampaign *string `json:"utm_campaign,omitempty"`
	UTMContent  *string `json:"utm_content,omitempty"`
	UTMTerm     *string `json:"utm_term,omitempty"`
	UTMTarget   *string `json:"utm_target,omitempty"`
	SCK         *string `json:"sck,omitempty"`
	SRC         *string `json:"src,omitempty"`
}
