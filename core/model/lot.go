package model

import (
	"time"
)

// SupplyLot is one farmer's offered quantity of a product at a price and
// harvest date. The inventory store owns the record; the engine only ever
// holds a read snapshot. Version increases monotonically on every mutation
// and guards optimistic reservation commits.
type SupplyLot struct {
	ID          string    `json:"id"`
	FarmerID    string    `json:"farmer_id"`
	ProductID   string    `json:"product_id"`
	Available   float64   `json:"available"`
	UnitPrice   float64   `json:"unit_price"`
	HarvestDate time.Time `json:"harvest_date"`
	Farm        GeoPoint  `json:"farm"`
	Version     uint64    `json:"version"`
}

// Reservation is a provisional, version-guarded hold on lot quantity.
// It only exists for the duration of a reservation transaction.
type Reservation struct {
	LotID           string  `json:"lot_id"`
	Quantity        float64 `json:"quantity"`
	ExpectedVersion uint64  `json:"expected_version"`
}
