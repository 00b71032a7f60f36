package metrics

import "time"

// NopSink discards every record.
type NopSink struct{}

func (NopSink) RecordAllocation([]AllocationRecord) error { return nil }

// MultiSink forwards records to several sinks, returning the first error.
type MultiSink struct {
	sinks []MetricsSink
}

// NewMultiSink combines the given sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordAllocation(recs []AllocationRecord) error {
	var first error
	for _, s := range m.sinks {
		if err := s.RecordAllocation(recs); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordConflict forwards to every sink implementing ConflictRecorder.
func (m *MultiSink) RecordConflict(productID string, attempt int) error {
	var first error
	for _, s := range m.sinks {
		if cr, ok := s.(ConflictRecorder); ok {
			if err := cr.RecordConflict(productID, attempt); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordPlanningLatency forwards to every sink implementing LatencyRecorder.
func (m *MultiSink) RecordPlanningLatency(productID string, d time.Duration) error {
	var first error
	for _, s := range m.sinks {
		if lr, ok := s.(LatencyRecorder); ok {
			if err := lr.RecordPlanningLatency(productID, d); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// RecordSolver forwards to every sink implementing SolverRecorder.
func (m *MultiSink) RecordSolver(action string) error {
	var first error
	for _, s := range m.sinks {
		if sr, ok := s.(SolverRecorder); ok {
			if err := sr.RecordSolver(action); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
