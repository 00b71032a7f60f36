package reserve

// Phase is the explicit lifecycle state of one allocation request. Keeping
// it as data (rather than implicit control flow) makes retries and
// failures observable and unit-testable without live infrastructure.
type Phase int

const (
	Planning Phase = iota
	Reserving
	Committed
	RolledBack
)

// String returns the phase name used in logs and audit records.
func (p Phase) String() string {
	switch p {
	case Planning:
		return "planning"
	case Reserving:
		return "reserving"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Attempt records the outcome of a single planning/reserving cycle.
type Attempt struct {
	Number int
	Phase  Phase
	Err    error
}
