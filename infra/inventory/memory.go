// Package inventory provides the built-in implementations of the
// inventory store boundary: an in-memory store used by tests and the
// development configuration, and a SQLite-backed store.
package inventory

import (
	"context"
	"sync"

	coreinv "github.com/agrimarket/alloc/core/inventory"
	"github.com/agrimarket/alloc/core/model"
)

// MemoryStore keeps supply lots in memory, guarded by a mutex, with the
// same compare-and-swap commit semantics the external store contract
// requires. Reads return copies; the committed state is only reachable
// through CommitReservations.
type MemoryStore struct {
	mu   sync.Mutex
	lots map[string]model.SupplyLot // by lot id
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lots: make(map[string]model.SupplyLot)}
}

// Seed inserts or replaces lots. Lots with version zero get version one
// so that a fresh lot is distinguishable from the zero value.
func (s *MemoryStore) Seed(lots ...model.SupplyLot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lot := range lots {
		if lot.Version == 0 {
			lot.Version = 1
		}
		s.lots[lot.ID] = lot
	}
}

// Snapshot returns a copy of the available lots for the product.
func (s *MemoryStore) Snapshot(ctx context.Context, productID string) ([]model.SupplyLot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SupplyLot
	for _, lot := range s.lots {
		if lot.ProductID == productID && lot.Available > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

// CommitReservations applies every reservation or none. Reservations are
// applied in order against a staged copy, so each one sees the version
// bumps of the ones before it; a version mismatch or overdraw discards
// the staged state and fails the whole commit with ErrVersionConflict.
func (s *MemoryStore) CommitReservations(ctx context.Context, res []model.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]model.SupplyLot, len(res))
	for _, r := range res {
		lot, ok := staged[r.LotID]
		if !ok {
			lot, ok = s.lots[r.LotID]
		}
		if !ok || lot.Version != r.ExpectedVersion || lot.Available < r.Quantity {
			return coreinv.ErrVersionConflict
		}
		lot.Available -= r.Quantity
		lot.Version++
		staged[r.LotID] = lot
	}
	for id, lot := range staged {
		s.lots[id] = lot
	}
	return nil
}

// Lot returns the current state of one lot, for tests and tooling.
func (s *MemoryStore) Lot(id string) (model.SupplyLot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lot, ok := s.lots[id]
	return lot, ok
}
