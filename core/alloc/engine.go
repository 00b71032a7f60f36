package alloc

import (
	"time"

	"github.com/agrimarket/alloc/core/logger"
	"github.com/agrimarket/alloc/core/model"
)

// Engine runs the allocation pipeline: normalize, score, solve, round,
// build and validate. It is stateless between runs; every run operates on
// the snapshot it is handed. The solver strategy is selected by request
// shape: a single order line uses the provably optimal greedy fill, a
// batch of lines sharing a lot pool requires the transportation LP.
type Engine struct {
	cfg    Config
	scorer *Scorer
	log    logger.Logger
}

// Plan is the outcome of one planning run for one order line, together
// with the reservations required to commit it.
type Plan struct {
	Plan         model.AllocationPlan
	Reservations []model.Reservation
}

// NewEngine builds an engine. road may be nil to use the haversine
// approximation, log may be nil.
func NewEngine(cfg Config, road RoadEstimator, log logger.Logger) *Engine {
	cfg.SetDefaults()
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Engine{cfg: cfg, scorer: NewScorer(cfg, road, log), log: log}
}

// PlanOrder allocates a single order line against the candidate lots.
// Infeasible demand is a normal business outcome: the returned plan is
// Unfulfilled with zero entries and no reservations.
func (e *Engine) PlanOrder(order model.OrderLine, lots []model.SupplyLot, now time.Time) (Plan, error) {
	order, lots, err := Normalize(order, lots, now)
	if err != nil {
		return Plan{}, err
	}

	var totalAvail float64
	for _, lot := range lots {
		totalAvail += lot.Available
	}
	if totalAvail < order.Quantity*order.MinFill {
		// Declared infeasible before any solver call is wasted.
		e.log.Debugf("order %s infeasible: %v available < %v required", order.ID, totalAvail, order.Quantity*order.MinFill)
		plan, err := buildPlan(order, lots, nil, nil, now)
		if err != nil {
			return Plan{}, err
		}
		return Plan{Plan: plan}, nil
	}

	scores := e.scorer.Score(order, lots)
	caps := make([]float64, len(lots))
	costs := make([]float64, len(lots))
	for i, lot := range lots {
		caps[i] = lot.Available
		costs[i] = scores[i].UnitCost
	}

	x, _ := greedyAllocate(order.Quantity, caps, costs)
	x = discretize(x, caps, e.cfg.RoundingUnit, order.Quantity)

	plan, err := buildPlan(order, lots, scores, x, now)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Plan: plan, Reservations: reservations(plan, lots)}, nil
}

// PlanBatch allocates several order lines against a shared lot pool. The
// lines compete for the same supply, which makes per-line greedy
// allocation suboptimal, so this path always goes through the LP solver.
// If the solver fails the whole batch surfaces a SolverFailure.
func (e *Engine) PlanBatch(orders []model.OrderLine, lots []model.SupplyLot, now time.Time) ([]Plan, error) {
	if len(orders) == 1 {
		p, err := e.PlanOrder(orders[0], lots, now)
		if err != nil {
			return nil, err
		}
		return []Plan{p}, nil
	}

	normalized := make([]model.OrderLine, len(orders))
	var pool []model.SupplyLot
	for i, order := range orders {
		o, l, err := Normalize(order, lots, now)
		if err != nil {
			return nil, err
		}
		normalized[i] = o
		if i == 0 {
			pool = l
		}
	}

	caps := make([]float64, len(pool))
	var totalAvail float64
	for i, lot := range pool {
		caps[i] = lot.Available
		totalAvail += lot.Available
	}

	scores := make([][]PairScore, len(normalized))
	costs := make([][]float64, len(pool))
	for i := range costs {
		costs[i] = make([]float64, len(normalized))
	}
	for j, order := range normalized {
		scores[j] = e.scorer.Score(order, pool)
		for i := range pool {
			costs[i][j] = scores[j][i].UnitCost
		}
	}

	targets, dropped := batchTargets(normalized, totalAvail)

	var x []float64
	if len(pool) > 0 {
		var err error
		x, err = lpSolve(costs, caps, targets)
		if err != nil {
			e.log.Errorf("batch LP solve failed: %v", err)
			return nil, &SolverFailure{Err: err}
		}
	}

	plans := make([]Plan, len(normalized))
	for j, order := range normalized {
		qty := make([]float64, len(pool))
		if !dropped[j] {
			for i := range pool {
				qty[i] = x[i*len(normalized)+j]
			}
			qty = discretize(qty, caps, e.cfg.RoundingUnit, order.Quantity)
			// Reduce the remaining caps so later lines cannot round
			// into quantity the earlier ones already took.
			for i := range pool {
				caps[i] -= qty[i]
			}
		}
		plan, err := buildPlan(order, pool, scores[j], qty, now)
		if err != nil {
			return nil, err
		}
		plans[j] = Plan{Plan: plan}
		if plan.Status != model.Unfulfilled {
			plans[j].Reservations = reservations(plan, pool)
		}
	}
	return plans, nil
}

// batchTargets computes the per-line fill targets for the batch LP. When
// the pool covers the aggregate demand every line targets its full
// quantity. Otherwise supply is shared pro rata; lines whose share falls
// below their minimum fill fraction are dropped from the batch and their
// share redistributed, so the remaining targets stay simultaneously
// achievable.
func batchTargets(orders []model.OrderLine, totalAvail float64) ([]float64, []bool) {
	targets := make([]float64, len(orders))
	dropped := make([]bool, len(orders))

	for {
		var demand float64
		for j, o := range orders {
			if !dropped[j] {
				demand += o.Quantity
			}
		}
		if demand <= 0 {
			return targets, dropped
		}
		ratio := 1.0
		if totalAvail < demand {
			ratio = totalAvail / demand
		}
		worst := -1
		worstShort := 0.0
		for j, o := range orders {
			if dropped[j] {
				targets[j] = 0
				continue
			}
			targets[j] = o.Quantity * ratio
			if short := o.MinFill - ratio; short > worstShort {
				worst, worstShort = j, short
			}
		}
		if worst == -1 {
			return targets, dropped
		}
		dropped[worst] = true
		targets[worst] = 0
	}
}
