// Package reserve coordinates allocation planning with the optimistic
// reservation protocol against the external inventory store. Planning is
// pure and holds no locks; contention is confined to the commit step.
package reserve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/agrimarket/alloc/core/alloc"
	"github.com/agrimarket/alloc/core/events"
	"github.com/agrimarket/alloc/core/inventory"
	"github.com/agrimarket/alloc/core/logger"
	"github.com/agrimarket/alloc/core/metrics"
	"github.com/agrimarket/alloc/core/model"
	"github.com/agrimarket/alloc/core/planlog"
	"github.com/agrimarket/alloc/internal/eventbus"
)

// ConcurrencyExhausted reports that the bounded reservation retries were
// used up. Callers may re-submit the order.
type ConcurrencyExhausted struct {
	OrderID  string
	Attempts []Attempt
}

func (e *ConcurrencyExhausted) Error() string {
	return fmt.Sprintf("allocation of order %s gave up after %d attempts", e.OrderID, len(e.Attempts))
}

// Coordinator drives the Planning -> Reserving -> Committed | RolledBack
// lifecycle for allocation requests. It is safe for concurrent use; every
// request runs on its own snapshot and shares no mutable state.
type Coordinator struct {
	engine  *alloc.Engine
	store   inventory.Store
	log     logger.Logger
	sink    metrics.MetricsSink
	bus     eventbus.EventBus
	audit   planlog.LogStore
	retries int
	timeout time.Duration
	now     func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithMetrics attaches a metrics sink.
func WithMetrics(s metrics.MetricsSink) Option {
	return func(c *Coordinator) { c.sink = s }
}

// WithBus attaches an event bus for lifecycle events.
func WithBus(b eventbus.EventBus) Option {
	return func(c *Coordinator) { c.bus = b }
}

// WithAuditLog attaches the allocation audit log.
func WithAuditLog(s planlog.LogStore) Option {
	return func(c *Coordinator) { c.audit = s }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator.
func NewCoordinator(cfg Config, engine *alloc.Engine, store inventory.Store, log logger.Logger, opts ...Option) (*Coordinator, error) {
	if engine == nil || store == nil {
		return nil, fmt.Errorf("reserve: nil engine or store")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	c := &Coordinator{
		engine:  engine,
		store:   store,
		log:     log,
		sink:    metrics.NopSink{},
		retries: cfg.RetryLimit,
		timeout: time.Duration(cfg.CollaboratorTimeoutMs) * time.Millisecond,
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Allocate runs the full pipeline for a single order line and commits the
// resulting reservations. On version conflicts or collaborator timeouts
// it replans against a fresh snapshot, up to the configured retry limit.
func (c *Coordinator) Allocate(ctx context.Context, order model.OrderLine) (model.AllocationPlan, error) {
	c.publish(events.OrderReceived{Order: order})
	start := c.now()

	c.recordSolver(order.ID, "greedy")

	var attempts []Attempt
	for n := 1; n <= c.retries; n++ {
		plan, phase, err := c.attempt(ctx, order)
		attempts = append(attempts, Attempt{Number: n, Phase: phase, Err: err})

		switch {
		case err == nil:
			c.recordLatency(order.ProductID, c.now().Sub(start))
			c.record(order, plan, phase.String(), n, nil)
			return plan, nil
		case errors.Is(err, inventory.ErrVersionConflict):
			c.log.Warnf("order %s lost reservation race, attempt %d/%d", order.ID, n, c.retries)
			c.publish(events.ReservationConflict{OrderID: order.ID, Attempt: n})
			c.recordConflict(order.ProductID, n)
		case errors.Is(err, context.DeadlineExceeded):
			c.log.Warnf("order %s collaborator call timed out, attempt %d/%d", order.ID, n, c.retries)
		default:
			// Validation, consistency and solver errors are not
			// retryable at this level.
			c.record(order, model.AllocationPlan{}, "failed", n, err)
			c.publish(events.PlanFailed{OrderID: order.ID, Err: err})
			return model.AllocationPlan{}, err
		}
	}

	err := &ConcurrencyExhausted{OrderID: order.ID, Attempts: attempts}
	c.record(order, model.AllocationPlan{}, "failed", len(attempts), err)
	c.publish(events.PlanFailed{OrderID: order.ID, Err: err})
	return model.AllocationPlan{}, err
}

// attempt performs one Planning -> Reserving cycle. The returned phase is
// the terminal phase of this cycle.
func (c *Coordinator) attempt(ctx context.Context, order model.OrderLine) (model.AllocationPlan, Phase, error) {
	snapCtx, cancel := context.WithTimeout(ctx, c.timeout)
	lots, err := c.store.Snapshot(snapCtx, order.ProductID)
	cancel()
	if err != nil {
		return model.AllocationPlan{}, Planning, err
	}

	p, err := c.engine.PlanOrder(order, lots, c.now())
	if err != nil {
		return model.AllocationPlan{}, Planning, err
	}
	c.publish(events.PlanBuilt{Plan: p.Plan})

	// Unfulfilled plans hold nothing against inventory and skip the
	// reserving phase entirely.
	if p.Plan.Status == model.Unfulfilled {
		return p.Plan, Planning, nil
	}

	commitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.store.CommitReservations(commitCtx, p.Reservations)
	cancel()
	if err != nil {
		return model.AllocationPlan{}, RolledBack, err
	}

	c.publish(events.PlanCommitted{Plan: p.Plan})
	return p.Plan, Committed, nil
}

// AllocateBatch plans several order lines together against the shared lot
// pool of their product and commits all reservations as one transaction.
// Batching avoids earlier lines starving later ones through sequential
// reservation.
func (c *Coordinator) AllocateBatch(ctx context.Context, orders []model.OrderLine) ([]model.AllocationPlan, error) {
	if len(orders) == 0 {
		return nil, nil
	}
	productID := orders[0].ProductID
	for _, o := range orders {
		c.publish(events.OrderReceived{Order: o})
		if o.ProductID != productID {
			return nil, &alloc.ValidationError{Field: "product_id", Reason: "batch lines must share one product"}
		}
	}
	start := c.now()
	if len(orders) > 1 {
		c.recordSolver("batch", "lp_attempt")
	}

	var attempts []Attempt
	for n := 1; n <= c.retries; n++ {
		plans, phase, err := c.attemptBatch(ctx, orders)
		attempts = append(attempts, Attempt{Number: n, Phase: phase, Err: err})

		switch {
		case err == nil:
			c.recordLatency(productID, c.now().Sub(start))
			for i, o := range orders {
				c.record(o, plans[i], phase.String(), n, nil)
			}
			out := make([]model.AllocationPlan, len(plans))
			copy(out, plans)
			return out, nil
		case errors.Is(err, inventory.ErrVersionConflict):
			c.log.Warnf("batch of %d lines lost reservation race, attempt %d/%d", len(orders), n, c.retries)
			c.publish(events.ReservationConflict{OrderID: "batch", Attempt: n})
			c.recordConflict(productID, n)
		case errors.Is(err, context.DeadlineExceeded):
			c.log.Warnf("batch collaborator call timed out, attempt %d/%d", n, c.retries)
		default:
			var sf *alloc.SolverFailure
			if errors.As(err, &sf) {
				c.recordSolver("batch", "lp_failure")
			}
			for _, o := range orders {
				c.publish(events.PlanFailed{OrderID: o.ID, Err: err})
			}
			return nil, err
		}
	}

	err := &ConcurrencyExhausted{OrderID: "batch", Attempts: attempts}
	for _, o := range orders {
		c.publish(events.PlanFailed{OrderID: o.ID, Err: err})
	}
	return nil, err
}

func (c *Coordinator) attemptBatch(ctx context.Context, orders []model.OrderLine) ([]model.AllocationPlan, Phase, error) {
	snapCtx, cancel := context.WithTimeout(ctx, c.timeout)
	lots, err := c.store.Snapshot(snapCtx, orders[0].ProductID)
	cancel()
	if err != nil {
		return nil, Planning, err
	}

	plans, err := c.engine.PlanBatch(orders, lots, c.now())
	if err != nil {
		return nil, Planning, err
	}

	// Lines drawing from the same lot collapse into one reservation so the
	// store sees a single version-guarded decrement per lot.
	byLot := make(map[string]int)
	var res []model.Reservation
	out := make([]model.AllocationPlan, len(plans))
	for i, p := range plans {
		out[i] = p.Plan
		c.publish(events.PlanBuilt{Plan: p.Plan})
		for _, r := range p.Reservations {
			if j, ok := byLot[r.LotID]; ok {
				res[j].Quantity += r.Quantity
				continue
			}
			byLot[r.LotID] = len(res)
			res = append(res, r)
		}
	}
	if len(res) == 0 {
		return out, Planning, nil
	}

	commitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	err = c.store.CommitReservations(commitCtx, res)
	cancel()
	if err != nil {
		return nil, RolledBack, err
	}
	for _, p := range out {
		if p.Status != model.Unfulfilled {
			c.publish(events.PlanCommitted{Plan: p})
		}
	}
	return out, Committed, nil
}

func (c *Coordinator) publish(e eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func (c *Coordinator) record(order model.OrderLine, plan model.AllocationPlan, phase string, attempts int, cause error) {
	rec := metrics.AllocationRecord{
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		ProductID:     order.ProductID,
		Status:        plan.Status,
		Entries:       len(plan.Entries),
		TotalQuantity: plan.TotalQuantity,
		TotalCost:     plan.TotalCost,
		Attempts:      attempts,
		Committed:     cause == nil && plan.Status != model.Unfulfilled,
		Time:          c.now(),
	}
	if err := c.sink.RecordAllocation([]metrics.AllocationRecord{rec}); err != nil {
		c.log.Errorf("metrics error: %v", err)
	}
	if c.audit != nil {
		lr := planlog.LogRecord{
			Timestamp: c.now(),
			Order:     order,
			Plan:      plan,
			Phase:     phase,
			Attempts:  attempts,
		}
		if cause != nil {
			lr.Error = cause.Error()
		}
		if err := c.audit.Append(context.Background(), lr); err != nil {
			c.log.Errorf("audit log error: %v", err)
		}
	}
}

func (c *Coordinator) recordConflict(productID string, attempt int) {
	if cr, ok := c.sink.(metrics.ConflictRecorder); ok {
		if err := cr.RecordConflict(productID, attempt); err != nil {
			c.log.Errorf("conflict metrics error: %v", err)
		}
	}
}

func (c *Coordinator) recordSolver(orderID, action string) {
	c.publish(events.StrategyEvent{OrderID: orderID, Action: action})
	if sr, ok := c.sink.(metrics.SolverRecorder); ok {
		if err := sr.RecordSolver(action); err != nil {
			c.log.Errorf("solver metrics error: %v", err)
		}
	}
}

func (c *Coordinator) recordLatency(productID string, d time.Duration) {
	if lr, ok := c.sink.(metrics.LatencyRecorder); ok {
		if err := lr.RecordPlanningLatency(productID, d); err != nil {
			c.log.Errorf("latency metrics error: %v", err)
		}
	}
}
