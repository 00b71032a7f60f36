package alloc

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/agrimarket/alloc/core/model"
)

// fixedRoad reports the farm latitude as the distance in km, which keeps
// the expected costs easy to compute by hand.
type fixedRoad struct{}

func (fixedRoad) DistanceKm(from, to model.GeoPoint) (float64, error) {
	return from.Lat, nil
}

func testOrder(qty float64) model.OrderLine {
	return model.OrderLine{
		ID:        "o1",
		BuyerID:   "buyer-1",
		ProductID: "tomato",
		Quantity:  qty,
	}
}

func testLots(now time.Time) []model.SupplyLot {
	return []model.SupplyLot{
		{ID: "lotA", FarmerID: "f1", ProductID: "tomato", Available: 60, UnitPrice: 10, HarvestDate: now, Farm: model.GeoPoint{Lat: 0}, Version: 1},
		{ID: "lotB", FarmerID: "f2", ProductID: "tomato", Available: 50, UnitPrice: 12, HarvestDate: now, Farm: model.GeoPoint{Lat: 20}, Version: 1},
	}
}

func TestPlanOrderSplitsAcrossLots(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	// Unit costs: lotA = 10, lotB = 12 + 0.05*20 = 13. The cheap lot is
	// drained first and the remainder comes from lotB.
	p, err := eng.PlanOrder(testOrder(100), testLots(now), now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Plan.Status != model.Fulfilled {
		t.Fatalf("status = %v, want fulfilled", p.Plan.Status)
	}
	if len(p.Plan.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(p.Plan.Entries))
	}
	got := map[string]float64{}
	for _, e := range p.Plan.Entries {
		got[e.LotID] = e.Quantity
	}
	if got["lotA"] != 60 || got["lotB"] != 40 {
		t.Errorf("allocation = %v, want lotA=60 lotB=40", got)
	}
	if math.Abs(p.Plan.TotalCost-1120) > 1e-6 {
		t.Errorf("total cost = %v, want 1120", p.Plan.TotalCost)
	}
	if math.Abs(p.Plan.TotalQuantity-100) > 1e-6 {
		t.Errorf("total quantity = %v, want 100", p.Plan.TotalQuantity)
	}
	if len(p.Reservations) != 2 {
		t.Fatalf("reservations = %d, want 2", len(p.Reservations))
	}
	for _, r := range p.Reservations {
		if r.ExpectedVersion != 1 {
			t.Errorf("reservation %s expected version %d, want 1", r.LotID, r.ExpectedVersion)
		}
	}
}

func TestPlanOrderInfeasibleIsUnfulfilled(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	p, err := eng.PlanOrder(testOrder(200), testLots(now), now)
	if err != nil {
		t.Fatalf("infeasible demand must not be an error: %v", err)
	}
	if p.Plan.Status != model.Unfulfilled {
		t.Fatalf("status = %v, want unfulfilled", p.Plan.Status)
	}
	if len(p.Plan.Entries) != 0 || p.Plan.TotalQuantity != 0 || p.Plan.TotalCost != 0 {
		t.Errorf("unfulfilled plan must be empty, got %+v", p.Plan)
	}
	if len(p.Reservations) != 0 {
		t.Errorf("unfulfilled plan must hold no reservations, got %d", len(p.Reservations))
	}
}

func TestPlanOrderPartialFill(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	order := testOrder(100)
	order.MinFill = 0.5
	lots := testLots(now)[:1] // only lotA with 60 available

	p, err := eng.PlanOrder(order, lots, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if p.Plan.Status != model.PartiallyFulfilled {
		t.Fatalf("status = %v, want partially_fulfilled", p.Plan.Status)
	}
	if math.Abs(p.Plan.TotalQuantity-60) > 1e-6 {
		t.Errorf("total quantity = %v, want 60", p.Plan.TotalQuantity)
	}
}

func TestPlanOrderRejectsInvalidOrder(t *testing.T) {
	now := time.Now()
	eng := NewEngine(Config{}, fixedRoad{}, nil)

	_, err := eng.PlanOrder(testOrder(0), testLots(now), now)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if ve.Field != "quantity" {
		t.Errorf("field = %s, want quantity", ve.Field)
	}
}

func TestPlanOrderDeterministic(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	// Same snapshot, same outcome, whatever the input ordering.
	lots := testLots(now)
	reversed := []model.SupplyLot{lots[1], lots[0]}

	p1, err := eng.PlanOrder(testOrder(100), lots, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	p2, err := eng.PlanOrder(testOrder(100), reversed, now)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(p1.Plan.Entries) != len(p2.Plan.Entries) {
		t.Fatalf("entry counts differ: %d vs %d", len(p1.Plan.Entries), len(p2.Plan.Entries))
	}
	for i := range p1.Plan.Entries {
		a, b := p1.Plan.Entries[i], p2.Plan.Entries[i]
		if a.LotID != b.LotID || a.Quantity != b.Quantity || a.LineCost != b.LineCost {
			t.Errorf("entry %d differs: %+v vs %+v", i, a, b)
		}
	}
	if p1.Plan.TotalCost != p2.Plan.TotalCost {
		t.Errorf("total costs differ: %v vs %v", p1.Plan.TotalCost, p2.Plan.TotalCost)
	}
}

func TestPlanBatchSharesPool(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	orders := []model.OrderLine{
		{ID: "o1", BuyerID: "b1", ProductID: "tomato", Quantity: 50},
		{ID: "o2", BuyerID: "b2", ProductID: "tomato", Quantity: 50},
	}
	lots := []model.SupplyLot{
		{ID: "lotA", FarmerID: "f1", ProductID: "tomato", Available: 60, UnitPrice: 10, HarvestDate: now, Version: 1},
		{ID: "lotB", FarmerID: "f2", ProductID: "tomato", Available: 40, UnitPrice: 12, HarvestDate: now, Version: 1},
	}

	plans, err := eng.PlanBatch(orders, lots, now)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(plans))
	}
	drawn := map[string]float64{}
	var total float64
	for _, p := range plans {
		if p.Plan.Status != model.Fulfilled {
			t.Errorf("order %s status = %v, want fulfilled", p.Plan.OrderID, p.Plan.Status)
		}
		for _, e := range p.Plan.Entries {
			drawn[e.LotID] += e.Quantity
			total += e.Quantity
		}
	}
	if math.Abs(total-100) > 1e-6 {
		t.Errorf("total allocated = %v, want 100", total)
	}
	if drawn["lotA"] > 60+1e-6 || drawn["lotB"] > 40+1e-6 {
		t.Errorf("lot capacity exceeded: %v", drawn)
	}
}

func TestPlanBatchScarceSupplyDropsLine(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{WDistance: 0.05}, fixedRoad{}, nil)

	// 100 available against 200 demanded with full-fill lines: only one
	// line can be satisfied, the other must come back unfulfilled.
	orders := []model.OrderLine{
		{ID: "o1", BuyerID: "b1", ProductID: "tomato", Quantity: 100},
		{ID: "o2", BuyerID: "b2", ProductID: "tomato", Quantity: 100},
	}
	lots := []model.SupplyLot{
		{ID: "lotA", FarmerID: "f1", ProductID: "tomato", Available: 100, UnitPrice: 10, HarvestDate: now, Version: 1},
	}

	plans, err := eng.PlanBatch(orders, lots, now)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	var fulfilled, unfulfilled int
	for _, p := range plans {
		switch p.Plan.Status {
		case model.Fulfilled:
			fulfilled++
		case model.Unfulfilled:
			unfulfilled++
		}
	}
	if fulfilled != 1 || unfulfilled != 1 {
		t.Errorf("fulfilled=%d unfulfilled=%d, want 1 and 1", fulfilled, unfulfilled)
	}
}

func TestPlanBatchSolverFailure(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	eng := NewEngine(Config{}, fixedRoad{}, nil)

	orig := lpSolve
	lpSolve = func(costs [][]float64, caps, targets []float64) ([]float64, error) {
		return nil, errors.New("simplex blew up")
	}
	defer func() { lpSolve = orig }()

	orders := []model.OrderLine{
		{ID: "o1", BuyerID: "b1", ProductID: "tomato", Quantity: 10},
		{ID: "o2", BuyerID: "b2", ProductID: "tomato", Quantity: 10},
	}
	_, err := eng.PlanBatch(orders, testLots(now), now)
	var sf *SolverFailure
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v, want SolverFailure", err)
	}
}

func TestBatchTargetsProRata(t *testing.T) {
	orders := []model.OrderLine{
		{Quantity: 100, MinFill: 0.4},
		{Quantity: 100, MinFill: 0.4},
	}
	targets, dropped := batchTargets(orders, 100)
	if dropped[0] || dropped[1] {
		t.Fatalf("no line should be dropped at ratio 0.5, got %v", dropped)
	}
	if targets[0] != 50 || targets[1] != 50 {
		t.Errorf("targets = %v, want [50 50]", targets)
	}
}

func TestBatchTargetsDropsBelowMinFill(t *testing.T) {
	orders := []model.OrderLine{
		{Quantity: 100, MinFill: 0.9},
		{Quantity: 100, MinFill: 0.3},
	}
	targets, dropped := batchTargets(orders, 100)
	if !dropped[0] {
		t.Fatalf("line 0 with min fill 0.9 should be dropped at ratio 0.5")
	}
	if dropped[1] {
		t.Fatalf("line 1 should survive")
	}
	if targets[0] != 0 || targets[1] != 100 {
		t.Errorf("targets = %v, want [0 100]", targets)
	}
}
