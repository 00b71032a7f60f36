package alloc

import "fmt"

// ValidationError reports malformed or out-of-range input. It names the
// offending field so callers can surface it without parsing messages.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SolverFailure indicates the numerical solver could not produce a result.
type SolverFailure struct {
	Err error
}

func (e *SolverFailure) Error() string {
	return fmt.Sprintf("solver failure: %v", e.Err)
}

func (e *SolverFailure) Unwrap() error { return e.Err }

// InternalConsistencyError reports an invariant violation detected while
// validating a built plan. It signals a solver or rounding bug and must
// abort the request; it is never a normal business outcome.
type InternalConsistencyError struct {
	Invariant string
	Detail    string
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violation (%s): %s", e.Invariant, e.Detail)
}
