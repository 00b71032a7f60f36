package inventory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	coreinv "github.com/agrimarket/alloc/core/inventory"
	"github.com/agrimarket/alloc/core/model"
)

// SQLiteStore persists supply lots in a SQLite database. Reservation
// commits run as one transaction of version-conditioned updates, so a
// concurrent writer makes the whole commit roll back with
// ErrVersionConflict.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	schema := `CREATE TABLE IF NOT EXISTS supply_lots (
        id TEXT PRIMARY KEY,
        farmer_id TEXT NOT NULL,
        product_id TEXT NOT NULL,
        available REAL NOT NULL,
        unit_price REAL NOT NULL,
        harvest_date INTEGER NOT NULL,
        lat REAL NOT NULL,
        lon REAL NOT NULL,
        version INTEGER NOT NULL DEFAULT 1
    );`
	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Upsert inserts or replaces a lot, bumping the version on replace.
func (s *SQLiteStore) Upsert(ctx context.Context, lot model.SupplyLot) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO supply_lots
        (id, farmer_id, product_id, available, unit_price, harvest_date, lat, lon, version)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
        ON CONFLICT(id) DO UPDATE SET
            farmer_id = excluded.farmer_id,
            product_id = excluded.product_id,
            available = excluded.available,
            unit_price = excluded.unit_price,
            harvest_date = excluded.harvest_date,
            lat = excluded.lat,
            lon = excluded.lon,
            version = supply_lots.version + 1`,
		lot.ID, lot.FarmerID, lot.ProductID, lot.Available, lot.UnitPrice,
		lot.HarvestDate.Unix(), lot.Farm.Lat, lot.Farm.Lon)
	return err
}

// Snapshot returns the available lots for a product.
func (s *SQLiteStore) Snapshot(ctx context.Context, productID string) ([]model.SupplyLot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, farmer_id, product_id, available,
        unit_price, harvest_date, lat, lon, version
        FROM supply_lots WHERE product_id = ? AND available > 0`, productID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.SupplyLot
	for rows.Next() {
		var lot model.SupplyLot
		var harvest int64
		if err := rows.Scan(&lot.ID, &lot.FarmerID, &lot.ProductID, &lot.Available,
			&lot.UnitPrice, &harvest, &lot.Farm.Lat, &lot.Farm.Lon, &lot.Version); err != nil {
			return nil, err
		}
		lot.HarvestDate = time.Unix(harvest, 0).UTC()
		out = append(out, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CommitReservations decrements each lot iff its version is unchanged.
// Any miss rolls the transaction back and reports ErrVersionConflict.
func (s *SQLiteStore) CommitReservations(ctx context.Context, res []model.Reservation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, r := range res {
		rs, err := tx.ExecContext(ctx, `UPDATE supply_lots
            SET available = available - ?, version = version + 1
            WHERE id = ? AND version = ? AND available >= ?`,
			r.Quantity, r.LotID, r.ExpectedVersion, r.Quantity)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		n, err := rs.RowsAffected()
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if n == 0 {
			_ = tx.Rollback()
			return coreinv.ErrVersionConflict
		}
	}
	return tx.Commit()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }
