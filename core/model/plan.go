package model

import (
	"fmt"
	"time"
)

// PlanStatus describes the overall outcome of an allocation run.
type PlanStatus int

const (
	Unfulfilled PlanStatus = iota
	PartiallyFulfilled
	Fulfilled
)

// String returns the human readable status name.
func (s PlanStatus) String() string {
	switch s {
	case Fulfilled:
		return "fulfilled"
	case PartiallyFulfilled:
		return "partially_fulfilled"
	case Unfulfilled:
		return "unfulfilled"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so the status serializes
// as its name rather than a bare integer.
func (s PlanStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the status name written by MarshalText.
func (s *PlanStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "fulfilled":
		*s = Fulfilled
	case "partially_fulfilled":
		*s = PartiallyFulfilled
	case "unfulfilled":
		*s = Unfulfilled
	default:
		return fmt.Errorf("unknown plan status %q", text)
	}
	return nil
}

// AllocationEntry assigns a quantity from one supply lot to the order.
type AllocationEntry struct {
	LotID            string  `json:"lot_id"`
	FarmerID         string  `json:"farmer_id"`
	Quantity         float64 `json:"quantity"`
	UnitPrice        float64 `json:"unit_price"`
	DistanceKm       float64 `json:"distance_km"`
	FreshnessPenalty float64 `json:"freshness_penalty"`
	LineCost         float64 `json:"line_cost"`
}

// AllocationPlan is the result of one allocation run. Plans are never
// mutated after creation; a re-run produces a new plan with a new ID.
type AllocationPlan struct {
	ID            string            `json:"id"`
	OrderID       string            `json:"order_id"`
	Status        PlanStatus        `json:"status"`
	Entries       []AllocationEntry `json:"entries"`
	TotalCost     float64           `json:"total_cost"`
	TotalQuantity float64           `json:"total_quantity"`
	CreatedAt     time.Time         `json:"created_at"`
}
