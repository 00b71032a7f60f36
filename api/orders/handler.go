// Package orders exposes the allocation engine over HTTP for collaborators
// that prefer a request/response call to the broker feed.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/agrimarket/alloc/core/alloc"
	"github.com/agrimarket/alloc/core/logger"
	"github.com/agrimarket/alloc/core/model"
	"github.com/agrimarket/alloc/core/reserve"
)

// Allocator is the single operation the handler needs.
type Allocator interface {
	Allocate(ctx context.Context, order model.OrderLine) (model.AllocationPlan, error)
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// NewAllocateHandler returns the handler for POST /v1/allocate.
// The body is a JSON OrderLine; the response is the AllocationPlan.
func NewAllocateHandler(a Allocator, log logger.Logger) http.Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var order model.OrderLine
		if err := json.NewDecoder(r.Body).Decode(&order); err != nil {
			writeError(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
			return
		}

		plan, err := a.Allocate(r.Context(), order)
		if err != nil {
			status, resp := classify(err)
			if status >= http.StatusInternalServerError {
				log.Errorf("allocation failed: %v", err)
			}
			writeError(w, status, resp)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(plan); err != nil {
			log.Errorf("encode plan: %v", err)
		}
	})
}

// classify maps the engine error taxonomy onto HTTP statuses. Infeasible
// demand never reaches here; it is a normal Unfulfilled plan.
func classify(err error) (int, errorResponse) {
	var ve *alloc.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorResponse{Error: ve.Error(), Field: ve.Field}
	}
	var ce *reserve.ConcurrencyExhausted
	if errors.As(err, &ce) {
		return http.StatusConflict, errorResponse{Error: "allocation retries exhausted, please re-submit"}
	}
	var se *alloc.SolverFailure
	if errors.As(err, &se) {
		return http.StatusInternalServerError, errorResponse{Error: "allocation solver failed"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorResponse{Error: "inventory collaborator timed out"}
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error"}
}

func writeError(w http.ResponseWriter, status int, resp errorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// NewHealthHandler reports liveness.
func NewHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
}
