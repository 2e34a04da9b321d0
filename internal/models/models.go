package models

import (
	"time"

	"github.com/plotgarden/plotgarden/internal/climate"
)

// CellKind classifies a grid cell within a plot.
type CellKind string

const (
	CellSoil     CellKind = "soil"
	CellWater    CellKind = "water"
	CellPath     CellKind = "path"
	CellBuilding CellKind = "building"
	CellBlocked  CellKind = "blocked"
)

// Valid reports whether the kind is one of the known cell kinds.
func (k CellKind) Valid() bool {
	switch k {
	case CellSoil, CellWater, CellPath, CellBuilding, CellBlocked:
		return true
	}
	return false
}

// Plan is a rectangular plot owned by a user. Latitude and longitude are
// optional until the user completes the location step; weather refresh
// requires both.
type Plan struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Latitude       *float64  `json:"latitude"`
	Longitude      *float64  `json:"longitude"`
	OrientationDeg float64   `json:"orientation_deg"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasLocation reports whether the plan carries a usable coordinate pair.
func (p *Plan) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// Cell is one grid cell of a plan. Cells keep their assigned kind; cells
// never assigned a kind are not stored.
type Cell struct {
	PlanID string   `json:"-"`
	X      int      `json:"x"`
	Y      int      `json:"y"`
	Kind   CellKind `json:"kind"`
}

// PlantPlacement is a plant placed on a soil cell, optionally carrying the
// AI fit scores that were accepted alongside it.
type PlantPlacement struct {
	ID            string    `json:"id"`
	PlanID        string    `json:"-"`
	X             int       `json:"x"`
	Y             int       `json:"y"`
	Name          string    `json:"name"`
	LatinName     *string   `json:"latin_name,omitempty"`
	SunlightScore *int      `json:"sunlight_score,omitempty"`
	HumidityScore *int      `json:"humidity_score,omitempty"`
	PrecipScore   *int      `json:"precip_score,omitempty"`
	OverallScore  *int      `json:"overall_score,omitempty"`
	Explanation   *string   `json:"explanation,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// MonthlyClimate is one cached month of normalized climate metrics for a
// plan. At most 12 rows are retained per plan, replaced wholesale on
// refresh; all four metrics lie in [0,100].
type MonthlyClimate struct {
	PlanID          string          `json:"-"`
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	Sunlight        climate.Percent `json:"sunlight"`
	Humidity        climate.Percent `json:"humidity"`
	Precipitation   climate.Percent `json:"precipitation"`
	Temperature     climate.Percent `json:"temperature"`
	LastRefreshedAt time.Time       `json:"last_refreshed_at"`
}
