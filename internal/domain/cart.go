package domain

import (
	"math"
	"time"
)

// MaxLineQuantity bounds a single line; quantities are stored as INTEGER.
const MaxLineQuantity = math.MaxInt32

// AddQuantities sums two non-negative quantities, saturating at MaxLineQuantity.
func AddQuantities(a, b int) int {
	if a >= MaxLineQuantity || b >= MaxLineQuantity-a {
		return MaxLineQuantity
	}
	return a + b
}

// CartLine is one (product, quantity) entry of an owner's cart.
type CartLine struct {
	Owner     CartOwner `json:"-"`
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CartItem is a cart line enriched with the product snapshot read alongside it.
type CartItem struct {
	ProductID   string `json:"id"`
	Name        string `json:"name"`
	PriceCents  int64  `json:"price"`
	Image       string `json:"image"`
	Quantity    int    `json:"quantity"`
	Stock       int    `json:"stock"`
	WeightGrams int    `json:"-"`
}

// ItemFromProduct joins a line quantity with its product.
func ItemFromProduct(p Product, quantity int) CartItem {
	return CartItem{
		ProductID:   p.ID,
		Name:        p.Name,
		PriceCents:  p.PriceCents,
		Image:       p.ImageURL,
		Quantity:    quantity,
		Stock:       p.Stock,
		WeightGrams: p.WeightGrams,
	}
}
