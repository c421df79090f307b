// Package domain contains core domain types for the Smart Auto Trader chat engine.
package domain

// Attribute identifies a filterable vehicle attribute category.
type Attribute string

const (
	AttrMake         Attribute = "make"
	AttrModel        Attribute = "model"
	AttrVehicleType  Attribute = "vehicleType"
	AttrFuelType     Attribute = "fuelType"
	AttrTransmission Attribute = "transmission"
	AttrFeature      Attribute = "feature"
)

// CategoricalAttributes lists every set-valued attribute category, in the
// order clarification questions consider them.
var CategoricalAttributes = []Attribute{
	AttrMake,
	AttrModel,
	AttrVehicleType,
	AttrFuelType,
	AttrTransmission,
	AttrFeature,
}

// SearchCriteria is the effective filter sent to the recommendation gateway.
// It is derived from DialogueState each turn, never stored.
type SearchCriteria struct {
	Makes         []string `json:"makes,omitempty"`
	Models        []string `json:"models,omitempty"`
	VehicleTypes  []string `json:"vehicleTypes,omitempty"`
	FuelTypes     []string `json:"fuelTypes,omitempty"`
	Transmissions []string `json:"transmissions,omitempty"`
	Features      []string `json:"features,omitempty"`
	MinPrice      *float64 `json:"minPrice,omitempty"`
	MaxPrice      *float64 `json:"maxPrice,omitempty"`
	MinYear       *int     `json:"minYear,omitempty"`
	MaxYear       *int     `json:"maxYear,omitempty"`
	MaxMileage    *int     `json:"maxMileage,omitempty"`
	MinEngineSize *float64 `json:"minEngineSize,omitempty"`
	MaxEngineSize *float64 `json:"maxEngineSize,omitempty"`
	MinHorsepower *int     `json:"minHorsepower,omitempty"`
	MaxHorsepower *int     `json:"maxHorsepower,omitempty"`
}

// HasMake reports whether any make constraint is active.
func (c *SearchCriteria) HasMake() bool { return len(c.Makes) > 0 }

// HasVehicleType reports whether any body-type constraint is active.
func (c *SearchCriteria) HasVehicleType() bool { return len(c.VehicleTypes) > 0 }

// HasPrice reports whether either price bound is set.
func (c *SearchCriteria) HasPrice() bool { return c.MinPrice != nil || c.MaxPrice != nil }

// IsEmpty reports whether no constraint of any kind is active.
func (c *SearchCriteria) IsEmpty() bool {
	return len(c.Makes) == 0 && len(c.Models) == 0 && len(c.VehicleTypes) == 0 &&
		len(c.FuelTypes) == 0 && len(c.Transmissions) == 0 && len(c.Features) == 0 &&
		c.MinPrice == nil && c.MaxPrice == nil && c.MinYear == nil && c.MaxYear == nil &&
		c.MaxMileage == nil && c.MinEngineSize == nil && c.MaxEngineSize == nil &&
		c.MinHorsepower == nil && c.MaxHorsepower == nil
}
