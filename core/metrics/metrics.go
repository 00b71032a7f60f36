// Package metrics defines the observability seam of the allocation
// engine. Sinks live in infra/metrics; the coordinator only talks to the
// interfaces below.
package metrics

import (
	"time"

	"github.com/agrimarket/alloc/core/model"
)

// AllocationRecord is one committed (or failed) allocation run.
type AllocationRecord struct {
	OrderID       string
	BuyerID       string
	ProductID     string
	Status        model.PlanStatus
	Entries       int
	TotalQuantity float64
	TotalCost     float64
	Attempts      int
	Committed     bool
	Time          time.Time
}

// MetricsSink records allocation results for observability purposes.
type MetricsSink interface {
	RecordAllocation(recs []AllocationRecord) error
}

// ConflictRecorder optionally records optimistic reservation conflicts.
type ConflictRecorder interface {
	RecordConflict(productID string, attempt int) error
}

// LatencyRecorder optionally records the planning latency per run.
type LatencyRecorder interface {
	RecordPlanningLatency(productID string, d time.Duration) error
}

// SolverRecorder optionally records which solver strategy served a run.
type SolverRecorder interface {
	RecordSolver(action string) error
}
