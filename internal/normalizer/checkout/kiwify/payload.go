package kiwify

import (
	"encoding/json"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/domain"
)

type orderPayload struct {
	OrderID            string          `json:"order_id"`
	OrderRef           string          `json:"order_ref"`
	OrderStatus        *string         `json:"order_status"`
	PaymentMethod      string          `json:"payment_method"`
	ProductType        string          `json:"product_type"`
	CreatedAt          string          `json:"created_at"`
	Installments       *int            `json:"installments"`
	Quantity           *int            `json:"quantity"`
	Customer           customer        `json:"Customer"`
	Product            product         `json:"Product"`
	Commissions        commissions     `json:"Commissions"`
	TrackingParameters tracking        `json:"TrackingParameters"`
	Subscription       json.RawMessage `json:"Subscription"`
}

type customer struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Mobile   string `json:"mobile"`
	IP       string `json:"ip"`
}

type product struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	OfferID      string `json:"product_offer_id"`
	OfferName    string `json:"product_offer_name"`
	ProducerName string `json:"producer_name"`
}

type commissions struct {
	ProductBasePrice   cents             `json:"product_base_price"`
	Currency           string            `json:"product_base_price_currency"`
	ChargeAmount       cents             `json:"charge_amount"`
	KiwifyFee          cents             `json:"kiwify_fee"`
	MyCommission       cents             `json:"my_commission"`
	CommissionedStores []commissionStore `json:"commissioned_stores"`
}

type commissionStore struct {
	ID         json.RawMessage `json:"id"`
	Type       string          `json:"type"`
	CustomName string          `json:"custom_name"`
	Email      string          `json:"email"`
	Value      json.RawMessage `json:"value"`
}

// affiliate is the stored shape of the affiliate JSON column.
type affiliate struct {
	ID         json.RawMessage `json:"id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Commission json.RawMessage `json:"commission"`

	value cents
}

// affiliate returns the first commissioned store of type affiliate.
func (c commissions) affiliate() *affiliate {
	for _, store := range c.CommissionedStores {
		if store.Type != "affiliate" {
			continue
		}
		aff := &affiliate{
			ID:         nullIfEmpty(store.ID),
			Name:       store.CustomName,
			Email:      store.Email,
			Commission: nullIfEmpty(store.Value),
		}
		if len(store.Value) > 0 {
			// An unparseable value leaves the commission unset.
			_ = aff.value.UnmarshalJSON(store.Value)
		}
		return aff
	}
	return nil
}

func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}

type tracking struct {
	UTMSource   *string `json:"utm_source"`
	UTMMedium   *string `json:"utm_medium"`
	UTMCampaign *string `json:"utm_campaign"`
	UTMContent  *string `json:"utm_content"`
	UTMTerm     *string `json:"utm_term"`
	UTMTarget   *string `json:"utm_target"`
	SCK         *string `json:"sck"`
	SRC         *string `json:"src"`
}

func (t tracking) toDomain() domain.Tracking {
	return domain.Tracking{
		UTMSource:   nonEmpty(t.UTMSource),
		UTMMedium:   nonEmpty(t.UTMMedium),
		UTMCampaign: nonEmpty(t.UTMCampaign),
		UTMContent:  nonEmpty(t.UTMContent),
		UTMTerm:     nonEmpty(t.UTMTerm),
		UTMTarget:   nonEmpty(t.UTMTarget),
		SCK:         nonEmpty(t.SCK),
		SRC:         nonEmpty(t.SRC),
	}
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

// cartPayload is the flat abandoned-checkout notification.
type cartPayload struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Document     string `json:"document"`
	Name         string `json:"name"`
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	IP           string `json:"ip"`
	OfferName    string `json:"offer_name"`
	ProducerName string `json:"producer_name"`
	tracking
}
