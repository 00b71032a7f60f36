// Package inventory defines the boundary to the external lot inventory.
// The engine never mutates lots directly; all mutation goes through the
// compare-and-swap commit below.
package inventory

import (
	"context"
	"errors"

	"github.com/agrimarket/alloc/core/model"
)

// ErrVersionConflict is returned by CommitReservations when any lot's
// version moved since the snapshot. The caller re-plans on a fresh
// snapshot.
var ErrVersionConflict = errors.New("inventory: lot version conflict")

// Store provides read snapshots of supply lots and atomic reservation
// commits. Implementations must treat CommitReservations as
// all-or-nothing: either every reservation applies, conditioned on its
// expected version, or none do.
type Store interface {
	// Snapshot returns the currently available lots for a product. The
	// returned slice is a copy owned by the caller.
	Snapshot(ctx context.Context, productID string) ([]model.SupplyLot, error)
	// CommitReservations decrements each referenced lot by the reserved
	// quantity iff the lot's version equals ExpectedVersion, bumping the
	// version. Any mismatch fails the whole commit with
	// ErrVersionConflict.
	CommitReservations(ctx context.Context, res []model.Reservation) error
}
