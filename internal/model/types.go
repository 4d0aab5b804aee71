package model

import (
	"time"

	"vrpengine/internal/opt"
)

// Request and run types shared by the API, the store and the CLI.

type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type VehicleTypeIn struct {
	Capacity     int     `json:"capacity"`
	Count        int     `json:"count"`
	MaxRouteCost float64 `json:"maxRouteCost,omitempty"`
}

// SolveRequest is the body of POST /v1/solve. Either CostMatrix or
// Locations must be set; either VehicleCapacities or Fleet.
type SolveRequest struct {
	TenantID          string          `json:"tenantId,omitempty"`
	CostMatrix        [][]float64     `json:"costMatrix,omitempty"`
	Locations         []GeoPoint      `json:"locations,omitempty"`
	Demands           []int           `json:"demands"`
	VehicleCapacities []int           `json:"vehicleCapacities,omitempty"`
	Fleet             []VehicleTypeIn `json:"fleet,omitempty"`
	Depot             int             `json:"depot"`
	TimeBudgetMs      *int            `json:"timeBudgetMs,omitempty"`
	Lambda            *float64        `json:"lambda,omitempty"`
	MaxIterations     int             `json:"maxIterations,omitempty"`
	Moves             []string        `json:"moves,omitempty"`
	IncludeEmpty      bool            `json:"includeEmpty,omitempty"`
	Async             bool            `json:"async,omitempty"`
	CallbackURL       string          `json:"callbackUrl,omitempty"`
}

// FleetTypes returns the fleet as engine vehicle types.
func (r *SolveRequest) FleetTypes() []opt.VehicleType {
	if len(r.Fleet) > 0 {
		out := make([]opt.VehicleType, len(r.Fleet))
		for i, f := range r.Fleet {
			out[i] = opt.VehicleType{Capacity: f.Capacity, Count: f.Count, MaxRouteCost: f.MaxRouteCost}
		}
		return out
	}
	out := make([]opt.VehicleType, len(r.VehicleCapacities))
	for i, c := range r.VehicleCapacities {
		out[i] = opt.VehicleType{Capacity: c, Count: 1}
	}
	return out
}

const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is the stored record of one solve.
type Run struct {
	ID           string      `json:"id"`
	TenantID     string      `json:"tenantId"`
	Status       string      `json:"status"`
	Nodes        int         `json:"nodes"`
	Vehicles     int         `json:"vehicles"`
	TimeBudgetMs int         `json:"timeBudgetMs"`
	Lambda       float64     `json:"lambda"`
	Report       *opt.Report `json:"report,omitempty"`
	Error        string      `json:"error,omitempty"`
	CallbackURL  string      `json:"callbackUrl,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	FinishedAt   *time.Time  `json:"finishedAt,omitempty"`
}

type SolveResponse struct {
	RunID  string      `json:"runId"`
	Status string      `json:"status"`
	Report *opt.Report `json:"report,omitempty"`
}

// SolverConfig holds per-tenant overrides of the solver defaults.
type SolverConfig struct {
	TimeBudgetMs  *int     `json:"timeBudgetMs,omitempty" yaml:"timeBudgetMs,omitempty"`
	Lambda        *float64 `json:"lambda,omitempty" yaml:"lambda,omitempty"`
	MaxIterations *int     `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	Moves         []string `json:"moves,omitempty" yaml:"moves,omitempty"`
}
