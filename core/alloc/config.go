package alloc

import "fmt"

// Config defines the allocation engine tuning knobs. The weights are a
// business policy and deliberately live in deployment configuration, not
// in code.
type Config struct {
	// WDistance is the marginal cost per kilometre added to the unit cost.
	WDistance float64 `json:"w_distance"`
	// WFreshness is the fractional price penalty applied per unit of
	// staleness (freshness penalty in [0,1]).
	WFreshness float64 `json:"w_freshness"`
	// Tortuosity scales great-circle distances to approximate road
	// distances when no road-network estimator is available.
	Tortuosity float64 `json:"tortuosity"`
	// DefaultShelfLifeDays applies to products absent from ShelfLifeDays.
	DefaultShelfLifeDays float64 `json:"default_shelf_life_days"`
	// ShelfLifeDays maps product ids to their maximum shelf life in days.
	ShelfLifeDays map[string]float64 `json:"shelf_life_days"`
	// RoundingUnit is the minimum tradable unit per entry quantity, e.g.
	// 1 for whole kilograms. Zero disables discretization.
	RoundingUnit float64 `json:"rounding_unit"`
}

// SetDefaults fills unset fields with the documented defaults.
func (c *Config) SetDefaults() {
	if c.WDistance == 0 {
		c.WDistance = 0.05
	}
	if c.WFreshness == 0 {
		c.WFreshness = 0.3
	}
	if c.Tortuosity == 0 {
		c.Tortuosity = 1.3
	}
	if c.DefaultShelfLifeDays == 0 {
		c.DefaultShelfLifeDays = 14
	}
	if c.RoundingUnit == 0 {
		c.RoundingUnit = 1
	}
}

// Validate rejects configurations that would break the cost model.
func (c Config) Validate() error {
	if c.WDistance < 0 {
		return fmt.Errorf("w_distance must not be negative")
	}
	if c.WFreshness < 0 {
		return fmt.Errorf("w_freshness must not be negative")
	}
	if c.Tortuosity < 1 {
		return fmt.Errorf("tortuosity must be >= 1")
	}
	if c.DefaultShelfLifeDays <= 0 {
		return fmt.Errorf("default_shelf_life_days must be positive")
	}
	for id, d := range c.ShelfLifeDays {
		if d <= 0 {
			return fmt.Errorf("shelf_life_days[%s] must be positive", id)
		}
	}
	if c.RoundingUnit < 0 {
		return fmt.Errorf("rounding_unit must not be negative")
	}
	return nil
}

// ShelfLife returns the shelf life for the product in days.
func (c Config) ShelfLife(productID string) float64 {
	if d, ok := c.ShelfLifeDays[productID]; ok {
		return d
	}
	return c.DefaultShelfLifeDays
}
