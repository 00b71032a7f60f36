package alloc

import (
	"math"
	"time"

	"github.com/agrimarket/alloc/core/model"
)

const earthRadiusKm = 6371.0

// RoadEstimator computes the transport distance between two points.
// Implementations backed by a routing service may fail; the scorer then
// falls back to a haversine estimate.
type RoadEstimator interface {
	DistanceKm(from, to model.GeoPoint) (float64, error)
}

// HaversineEstimator approximates road distance as the great-circle
// distance scaled by a fixed tortuosity factor. It is an approximation and
// is reported as such, never as an exact road distance.
type HaversineEstimator struct {
	Tortuosity float64
}

// DistanceKm returns the scaled great-circle distance. It never fails.
func (e HaversineEstimator) DistanceKm(from, to model.GeoPoint) (float64, error) {
	f := e.Tortuosity
	if f < 1 {
		f = 1
	}
	return Haversine(from, to) * f, nil
}

// Haversine returns the great-circle distance between two points in km.
func Haversine(a, b model.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// FreshnessPenalty returns the normalized staleness of produce harvested
// at harvest and ordered at orderDate, clamped to [0,1]. Harvest dates in
// the future contribute no penalty.
func FreshnessPenalty(orderDate, harvest time.Time, shelfLifeDays float64) float64 {
	if shelfLifeDays <= 0 {
		return 1
	}
	ageDays := orderDate.Sub(harvest).Hours() / 24
	if ageDays <= 0 {
		return 0
	}
	p := ageDays / shelfLifeDays
	if p > 1 {
		return 1
	}
	return p
}

// PairScore holds the derived signals for one (order, lot) pair. Scores
// are computed fresh for every allocation run and never cached across
// runs, since prices, quantities and dates move underneath.
type PairScore struct {
	LotID            string
	DistanceKm       float64
	FreshnessPenalty float64
	UnitCost         float64
}

// Scorer derives distance, freshness and unit cost per candidate lot.
// It is a pure function of its inputs and the configured weights.
type Scorer struct {
	cfg  Config
	road RoadEstimator
	log  fallbackLogger
}

type fallbackLogger interface {
	Warnf(format string, args ...any)
}

// NewScorer builds a scorer. A nil estimator selects the haversine
// fallback directly. The logger may be nil.
func NewScorer(cfg Config, road RoadEstimator, log fallbackLogger) *Scorer {
	if road == nil {
		road = HaversineEstimator{Tortuosity: cfg.Tortuosity}
	}
	return &Scorer{cfg: cfg, road: road, log: log}
}

// Score computes the pair scores for every lot against the order line,
// in the same order as lots. Estimator failures degrade to the haversine
// approximation for the remainder of the run.
func (s *Scorer) Score(order model.OrderLine, lots []model.SupplyLot) []PairScore {
	shelfLife := s.cfg.ShelfLife(order.ProductID)
	fallback := HaversineEstimator{Tortuosity: s.cfg.Tortuosity}
	road := s.road
	out := make([]PairScore, len(lots))
	for i, lot := range lots {
		dist, err := road.DistanceKm(lot.Farm, order.Delivery)
		if err != nil {
			if s.log != nil {
				s.log.Warnf("road estimator failed for lot %s, using haversine approximation: %v", lot.ID, err)
			}
			road = fallback
			dist, _ = road.DistanceKm(lot.Farm, order.Delivery)
		}
		penalty := FreshnessPenalty(order.CreatedAt, lot.HarvestDate, shelfLife)
		out[i] = PairScore{
			LotID:            lot.ID,
			DistanceKm:       dist,
			FreshnessPenalty: penalty,
			UnitCost:         UnitCost(s.cfg, lot.UnitPrice, dist, penalty),
		}
	}
	return out
}

// UnitCost merges price, transport cost and freshness penalty into the
// per-unit objective coefficient:
//
//	cost = price + wDistance*km + wFreshness*penalty*price
//
// The model is linear in the decision variables so the allocation problem
// stays a linear program.
func UnitCost(cfg Config, price, distanceKm, penalty float64) float64 {
	return price + cfg.WDistance*distanceKm + cfg.WFreshness*penalty*price
}
