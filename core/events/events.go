// Package events defines the lifecycle events published on the internal
// bus while an allocation request moves through the coordinator.
package events

import "github.com/agrimarket/alloc/core/model"

// OrderReceived is published when a new order enters planning.
type OrderReceived struct {
	Order model.OrderLine
}

// PlanBuilt is published after a planning pass produced a validated plan,
// before any reservation attempt.
type PlanBuilt struct {
	Plan model.AllocationPlan
}

// ReservationConflict is published when a commit lost the optimistic race
// and the request rolls back for another attempt.
type ReservationConflict struct {
	OrderID string
	Attempt int
}

// PlanCommitted is published once the reservations are committed and the
// plan is final.
type PlanCommitted struct {
	Plan     model.AllocationPlan
	Attempts int
}

// PlanFailed is published when a request gives up.
type PlanFailed struct {
	OrderID string
	Err     error
}

// StrategyEvent reports which solver strategy a run used.
type StrategyEvent struct {
	OrderID string
	Action  string // lp_attempt, lp_failure, greedy
}
