package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/agrimarket/alloc/core/metrics"
)

// PromSink records allocation events in Prometheus metrics.
type PromSink struct {
	allocations *prometheus.CounterVec
	quantity    *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
	solver      *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewPromSink registers allocation metrics on the default Prometheus
// registerer. The metrics server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_runs_total",
		Help: "Total number of allocation runs by outcome",
	}, []string{"product_id", "status", "committed"})
	quantity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_quantity_total",
		Help: "Total quantity allocated in canonical units",
	}, []string{"product_id"})
	conflicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_version_conflicts_total",
		Help: "Optimistic reservation commits lost to concurrent writers",
	}, []string{"product_id"})
	solver := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocation_solver_total",
		Help: "Solver strategy selections and failures",
	}, []string{"action"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "allocation_planning_seconds",
		Help:    "Time from order receipt to committed plan",
		Buckets: prometheus.DefBuckets,
	}, []string{"product_id"})

	for _, c := range []*prometheus.CounterVec{allocations, quantity, conflicts, solver} {
		if err := register(reg, c); err != nil {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		allocations: allocations,
		quantity:    quantity,
		conflicts:   conflicts,
		solver:      solver,
		latency:     latency,
	}, nil
}

func register(reg prometheus.Registerer, c *prometheus.CounterVec) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// RecordAllocation increments the counters for each allocation run.
func (s *PromSink) RecordAllocation(recs []coremetrics.AllocationRecord) error {
	for _, r := range recs {
		committed := "false"
		if r.Committed {
			committed = "true"
		}
		s.allocations.WithLabelValues(r.ProductID, r.Status.String(), committed).Inc()
		if r.TotalQuantity > 0 {
			s.quantity.WithLabelValues(r.ProductID).Add(r.TotalQuantity)
		}
	}
	return nil
}

// RecordConflict counts a lost optimistic commit.
func (s *PromSink) RecordConflict(productID string, _ int) error {
	s.conflicts.WithLabelValues(productID).Inc()
	return nil
}

// RecordSolver counts solver strategy events.
func (s *PromSink) RecordSolver(action string) error {
	s.solver.WithLabelValues(action).Inc()
	return nil
}

// RecordPlanningLatency observes the end-to-end planning latency.
func (s *PromSink) RecordPlanningLatency(productID string, d time.Duration) error {
	s.latency.WithLabelValues(productID).Observe(d.Seconds())
	return nil
}

// StartPromServer starts an HTTP server exposing Prometheus metrics on
// the given address. The server runs until the context is canceled. A
// dedicated ServeMux avoids interfering with the API handlers.
func StartPromServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("prom server shutdown: %v", err)
		}
		cancel()
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
