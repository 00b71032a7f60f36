// Package planlog persists an auditable record of every allocation run.
// Each record captures the order, the resulting plan, the final phase of
// the reservation lifecycle and how many attempts it took.
package planlog

import (
	"context"
	"time"

	"github.com/agrimarket/alloc/core/model"
)

// LogRecord captures one allocation run and its outcome.
type LogRecord struct {
	Timestamp time.Time            `json:"timestamp"`
	Order     model.OrderLine      `json:"order"`
	Plan      model.AllocationPlan `json:"plan"`
	Phase     string               `json:"phase"` // planning, committed, rolled_back, failed
	Attempts  int                  `json:"attempts"`
	Error     string               `json:"error,omitempty"`
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start   time.Time
	End     time.Time
	OrderID string
	BuyerID string
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

func (q LogQuery) matches(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.OrderID != "" && r.Order.ID != q.OrderID {
		return false
	}
	if q.BuyerID != "" && r.Order.BuyerID != q.BuyerID {
		return false
	}
	return true
}
