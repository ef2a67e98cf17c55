// Package seed generates realistic Kiwify checkout webhooks for local
// development and load testing.
package seed

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var orderStatuses = []string{"paid", "paid", "paid", "waiting_payment", "refused", "refunded", "chargedback"}

var paymentMethods = []string{"credit_card", "pix", "boleto"}

// Generator produces Kiwify order and abandoned-cart payloads. The same
// seed yields the same sequence.
type Generator struct {
	faker     *gofakeit.Faker
	cartRatio float64
	products  []product
}

type product struct {
	id, name, offerID, offerName string
	priceCents                   int
}

func NewGenerator(seed int64, cartRatio float64) *Generator {
	f := gofakeit.New(seed)

	products := make([]product, 5)
	for i := range products {
		products[i] = product{
			id:         f.UUID(),
			name:       f.ProductName(),
			offerID:    f.UUID(),
			offerName:  f.Word(),
			priceCents: f.Number(1990, 49700),
		}
	}

	return &Generator{faker: f, cartRatio: cartRatio, products: products}
}

// Next returns the next payload and whether it is an abandoned cart.
func (g *Generator) Next() ([]byte, bool, error) {
	if g.faker.Float64Range(0, 1) < g.cartRatio {
		b, err := json.Marshal(g.Cart())
		return b, true, err
	}
	b, err := json.Marshal(g.Order())
	return b, false, err
}

// Order builds an order notification carrying order_status.
func (g *Generator) Order() map[string]any {
	f := g.faker
	p := g.products[f.Number(0, len(g.products)-1)]
	charge := p.priceCents
	fee := charge * 9 / 100
	createdAt := f.DateRange(time.Now().AddDate(0, 0, -30), time.Now())

	order := map[string]any{
		"order_id":       f.UUID(),
		"order_ref":      strings.ToUpper(f.LetterN(8)),
		"order_status":   f.RandomString(orderStatuses),
		"payment_method": f.RandomString(paymentMethods),
		"product_type":   "membership",
		"created_at":     createdAt.Format("2006-01-02 15:04"),
		"installments":   f.Number(1, 12),
		"Customer": map[string]any{
			"email":     f.Email(),
			"full_name": f.Name(),
			"mobile":    g.phone(),
			"ip":        f.IPv4Address(),
		},
		"Product": map[string]any{
			"product_id":         p.id,
			"product_name":       p.name,
			"product_offer_id":   p.offerID,
			"product_offer_name": p.offerName,
			"producer_name":      f.Company(),
		},
		"Commissions": map[string]any{
			"product_base_price":          p.priceCents,
			"product_base_price_currency": "BRL",
			"charge_amount":               charge,
			"kiwify_fee":                  fee,
			"my_commission":               charge - fee,
		},
		"TrackingParameters": g.tracking(),
	}

	if f.Bool() {
		commission := (charge - fee) * 30 / 100
		order["Commissions"].(map[string]any)["commissioned_stores"] = []map[string]any{{
			"id":          f.UUID(),
			"type":        "affiliate",
			"custom_name": f.Name(),
			"email":       f.Email(),
			"value":       fmt.Sprint(commission),
		}}
	}

	return order
}

// Cart builds an abandoned checkout notification, which has no order_status.
func (g *Generator) Cart() map[string]any {
	f := g.faker
	p := g.products[f.Number(0, len(g.products)-1)]

	cart := map[string]any{
		"email":         f.Email(),
		"phone":         g.phone(),
		"document":      f.DigitN(11),
		"name":          f.Name(),
		"product_id":    p.id,
		"product_name":  p.name,
		"ip":            f.IPv4Address(),
		"offer_name":    p.offerName,
		"producer_name": f.Company(),
	}
	for k, v := range g.tracking() {
		cart[k] = v
	}
	return cart
}

// phone renders a Brazilian mobile in one of the formats seen in the wild.
func (g *Generator) phone() string {
	f := g.faker
	// Area codes starting with 55 collide with the country code.
	area := f.Number(11, 54)
	sub := f.DigitN(8)
	switch f.Number(0, 2) {
	case 0:
		return fmt.Sprintf("+55 (%d) %s-%s", area, sub[:4], sub[4:])
	case 1:
		return fmt.Sprintf("%d9%s", area, sub)
	default:
		return fmt.Sprintf("55%d%s", area, sub)
	}
}

func (g *Generator) tracking() map[string]any {
	f := g.faker
	if !f.Bool() {
		return map[string]any{}
	}
	return map[string]any{
		"utm_source":   f.RandomString([]string{"facebook", "google", "instagram", "email"}),
		"utm_medium":   f.RandomString([]string{"cpc", "organic", "social"}),
		"utm_campaign": f.Word(),
		"src":          f.Word(),
	}
}
