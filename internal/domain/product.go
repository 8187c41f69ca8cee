package domain

import "time"

// Product is the catalog snapshot the cart references. Stock is the on-hand
// count at read time and is never cached by the cart.
type Product struct {
	ID          string    `json:"id"`
	Key         string    `json:"key"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price"`
	Currency    string    `json:"currency"`
	ImageURL    string    `json:"image,omitempty"`
	Stock       int       `json:"stock"`
	WeightGrams int       `json:"weightGrams"`
	CreatedAt   time.Time `json:"createdAt"`
}
