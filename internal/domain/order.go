package domain

import "time"

// ShippingQuote is a computed carrier offer; it is never persisted on its own.
type ShippingQuote struct {
	Carrier           string `json:"carrier"`
	CarrierName       string `json:"carrierName"`
	Service           string `json:"service"`
	PriceCents        int64  `json:"price"`
	Days              int    `json:"days"`
	EstimatedDelivery string `json:"estimatedDelivery"`
	Zone              string `json:"zone"`
}

type ShippingAddress struct {
	FullName   string `json:"fullName"`
	Street     string `json:"street"`
	City       string `json:"city"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postalCode"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
}

// PaymentInfo is opaque payment metadata; card data never reaches the store.
type PaymentInfo struct {
	Method    string `json:"method"`
	Reference string `json:"reference,omitempty"`
}

// OrderLine is a frozen copy of a cart line at commit time.
type OrderLine struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unitPrice"`
	Quantity       int    `json:"quantity"`
	TotalCents     int64  `json:"total"`
}

// Order is created only by the commit workflow and never mutated afterwards.
type Order struct {
	ID              string          `json:"id"`
	Number          string          `json:"number"`
	IdempotencyKey  string          `json:"idempotencyKey"`
	Owner           CartOwner       `json:"-"`
	Lines           []OrderLine     `json:"items"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Shipping        ShippingQuote   `json:"shipping"`
	Payment         PaymentInfo     `json:"payment"`
	SubtotalCents   int64           `json:"subtotal"`
	TaxCents        int64           `json:"tax"`
	ShippingCents   int64           `json:"shippingCost"`
	TotalCents      int64           `json:"total"`
	Currency        string          `json:"currency"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// StockDemand sums line quantities per product, saturating at MaxLineQuantity.
// Lines outside 1..MaxLineQuantity are a ValidationError.
func (o *Order) StockDemand() (map[string]int, error) {
	demand := make(map[string]int, len(o.Lines))
	for _, l := range o.Lines {
		if l.Quantity < 1 || l.Quantity > MaxLineQuantity {
			return nil, Invalid("items", "quantity for %s must be between 1 and %d", l.ProductID, MaxLineQuantity)
		}
		demand[l.ProductID] = AddQuantities(demand[l.ProductID], l.Quantity)
	}
	return demand, nil
}
