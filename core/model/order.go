package model

import (
	"time"
)

// OrderLine is one buyer's request for a quantity of a product. It is
// immutable once submitted to the engine; a changed request is a new line.
type OrderLine struct {
	ID        string    `json:"id"`
	BuyerID   string    `json:"buyer_id"`
	ProductID string    `json:"product_id"`
	Quantity  float64   `json:"quantity"` // canonical unit, e.g. kg
	Delivery  GeoPoint  `json:"delivery"`
	// MinFill is the minimum acceptable fulfillment fraction in (0,1].
	// 1 means the order must be fully covered or left unfulfilled.
	MinFill   float64   `json:"min_fill"`
	CreatedAt time.Time `json:"created_at"`
}
