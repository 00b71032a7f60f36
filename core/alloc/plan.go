package alloc

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrimarket/alloc/core/model"
)

const quantityEps = 1e-6

// buildPlan converts rounded solver output into an AllocationPlan.
// quantities is aligned with lots and scores. Zero-quantity entries are
// dropped and every invariant is re-checked before the plan is returned.
func buildPlan(order model.OrderLine, lots []model.SupplyLot, scores []PairScore, quantities []float64, now time.Time) (model.AllocationPlan, error) {
	plan := model.AllocationPlan{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		CreatedAt: now,
	}
	for i, q := range quantities {
		if q <= 0 {
			continue
		}
		lineCost := q * scores[i].UnitCost
		plan.Entries = append(plan.Entries, model.AllocationEntry{
			LotID:            lots[i].ID,
			FarmerID:         lots[i].FarmerID,
			Quantity:         q,
			UnitPrice:        lots[i].UnitPrice,
			DistanceKm:       scores[i].DistanceKm,
			FreshnessPenalty: scores[i].FreshnessPenalty,
			LineCost:         lineCost,
		})
		plan.TotalQuantity += q
		plan.TotalCost += lineCost
	}

	switch {
	case plan.TotalQuantity >= order.Quantity-quantityEps:
		plan.Status = model.Fulfilled
	case plan.TotalQuantity >= order.Quantity*order.MinFill-quantityEps:
		plan.Status = model.PartiallyFulfilled
	default:
		// Below the acceptable fraction: the order is unfulfilled and
		// must not hold any quantity against inventory.
		plan.Status = model.Unfulfilled
		plan.Entries = nil
		plan.TotalQuantity = 0
		plan.TotalCost = 0
	}

	if err := validatePlan(order, lots, plan); err != nil {
		return model.AllocationPlan{}, err
	}
	return plan, nil
}

// validatePlan re-checks every plan invariant. A violation here is a
// solver or rounding bug, reported as an InternalConsistencyError so the
// request halts instead of returning a corrupted plan.
func validatePlan(order model.OrderLine, lots []model.SupplyLot, plan model.AllocationPlan) error {
	available := make(map[string]float64, len(lots))
	for _, lot := range lots {
		available[lot.ID] = lot.Available
	}

	var totalQ, totalC float64
	drawn := make(map[string]float64, len(plan.Entries))
	for _, e := range plan.Entries {
		if e.Quantity <= 0 {
			return &InternalConsistencyError{Invariant: "positive-entries", Detail: fmt.Sprintf("lot %s has quantity %v", e.LotID, e.Quantity)}
		}
		if e.DistanceKm < 0 || e.FreshnessPenalty < 0 || e.LineCost < 0 {
			return &InternalConsistencyError{Invariant: "non-negative-costs", Detail: fmt.Sprintf("lot %s carries a negative cost term", e.LotID)}
		}
		avail, ok := available[e.LotID]
		if !ok {
			return &InternalConsistencyError{Invariant: "known-lot", Detail: fmt.Sprintf("entry references unknown lot %s", e.LotID)}
		}
		drawn[e.LotID] += e.Quantity
		if drawn[e.LotID] > avail+quantityEps {
			return &InternalConsistencyError{Invariant: "lot-conservation", Detail: fmt.Sprintf("lot %s drawn %v of %v available", e.LotID, drawn[e.LotID], avail)}
		}
		totalQ += e.Quantity
		totalC += e.LineCost
	}
	if totalQ > order.Quantity+quantityEps {
		return &InternalConsistencyError{Invariant: "order-conservation", Detail: fmt.Sprintf("allocated %v of %v requested", totalQ, order.Quantity)}
	}
	if diff := totalQ - plan.TotalQuantity; diff > quantityEps || diff < -quantityEps {
		return &InternalConsistencyError{Invariant: "quantity-total", Detail: fmt.Sprintf("entries sum %v, plan says %v", totalQ, plan.TotalQuantity)}
	}
	if diff := totalC - plan.TotalCost; diff > 1e-3 || diff < -1e-3 {
		return &InternalConsistencyError{Invariant: "cost-total", Detail: fmt.Sprintf("entries sum %v, plan says %v", totalC, plan.TotalCost)}
	}

	switch plan.Status {
	case model.Fulfilled:
		if totalQ < order.Quantity-quantityEps {
			return &InternalConsistencyError{Invariant: "status", Detail: "fulfilled plan does not cover the requested quantity"}
		}
	case model.PartiallyFulfilled:
		if totalQ < order.Quantity*order.MinFill-quantityEps || totalQ >= order.Quantity+quantityEps {
			return &InternalConsistencyError{Invariant: "status", Detail: "partial plan outside the acceptable fill range"}
		}
	case model.Unfulfilled:
		if len(plan.Entries) != 0 {
			return &InternalConsistencyError{Invariant: "status", Detail: "unfulfilled plan must carry zero entries"}
		}
	}
	return nil
}

// reservations derives the version-guarded holds for a plan against the
// snapshot the plan was computed from.
func reservations(plan model.AllocationPlan, lots []model.SupplyLot) []model.Reservation {
	versions := make(map[string]uint64, len(lots))
	for _, lot := range lots {
		versions[lot.ID] = lot.Version
	}
	out := make([]model.Reservation, 0, len(plan.Entries))
	for _, e := range plan.Entries {
		out = append(out, model.Reservation{
			LotID:           e.LotID,
			Quantity:        e.Quantity,
			ExpectedVersion: versions[e.LotID],
		})
	}
	return out
}
