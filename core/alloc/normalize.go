package alloc

import (
	"sort"
	"time"

	"github.com/agrimarket/alloc/core/model"
)

// Normalize validates the order line and the candidate lots and returns a
// canonical copy of both. Lots with zero available quantity are dropped,
// duplicate lot ids keep the highest version, and the result is ordered by
// lot id so repeated runs see identical input.
func Normalize(order model.OrderLine, lots []model.SupplyLot, now time.Time) (model.OrderLine, []model.SupplyLot, error) {
	if order.MinFill == 0 {
		order.MinFill = 1
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.Quantity <= 0 {
		return order, nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if order.BuyerID == "" {
		return order, nil, &ValidationError{Field: "buyer_id", Reason: "must not be empty"}
	}
	if order.ProductID == "" {
		return order, nil, &ValidationError{Field: "product_id", Reason: "must not be empty"}
	}
	if order.MinFill < 0 || order.MinFill > 1 {
		return order, nil, &ValidationError{Field: "min_fill", Reason: "must be in (0,1]"}
	}
	if err := order.Delivery.Validate(); err != nil {
		return order, nil, &ValidationError{Field: "delivery", Reason: err.Error()}
	}

	latest := make(map[string]model.SupplyLot, len(lots))
	for _, lot := range lots {
		if lot.ID == "" {
			return order, nil, &ValidationError{Field: "lot_id", Reason: "must not be empty"}
		}
		if lot.ProductID != order.ProductID {
			return order, nil, &ValidationError{Field: "lot_product_id", Reason: "lot " + lot.ID + " does not match order product"}
		}
		if lot.Available < 0 {
			return order, nil, &ValidationError{Field: "available", Reason: "lot " + lot.ID + " has negative quantity"}
		}
		if lot.UnitPrice <= 0 {
			return order, nil, &ValidationError{Field: "unit_price", Reason: "lot " + lot.ID + " must have a positive price"}
		}
		if lot.HarvestDate.After(order.CreatedAt) {
			return order, nil, &ValidationError{Field: "harvest_date", Reason: "lot " + lot.ID + " harvested in the future"}
		}
		if err := lot.Farm.Validate(); err != nil {
			return order, nil, &ValidationError{Field: "farm", Reason: "lot " + lot.ID + ": " + err.Error()}
		}
		if prev, ok := latest[lot.ID]; !ok || lot.Version > prev.Version {
			latest[lot.ID] = lot
		}
	}

	out := make([]model.SupplyLot, 0, len(latest))
	for _, lot := range latest {
		if lot.Available == 0 {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return order, out, nil
}
