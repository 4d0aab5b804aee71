package api

import (
	"fmt"
	"math"
	"net/url"
	"time"

	"vrpengine/internal/model"
	"vrpengine/internal/opt"
)

// validateSolveRequest checks request shape and service limits. Whether the
// numbers form a well-formed instance is left to opt.NewInstance.
func validateSolveRequest(req *model.SolveRequest, maxNodes int, maxBudget time.Duration) error {
	hasMatrix, hasLocs := len(req.CostMatrix) > 0, len(req.Locations) > 0
	if hasMatrix == hasLocs {
		return fmt.Errorf("exactly one of costMatrix or locations is required")
	}
	n := len(req.CostMatrix)
	if hasLocs {
		n = len(req.Locations)
		for i, p := range req.Locations {
			if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
				return fmt.Errorf("location %d out of range: (%v,%v)", i, p.Lat, p.Lng)
			}
		}
	}
	if maxNodes > 0 && n > maxNodes {
		return fmt.Errorf("%d nodes exceed the limit of %d", n, maxNodes)
	}
	if (len(req.VehicleCapacities) > 0) == (len(req.Fleet) > 0) {
		return fmt.Errorf("exactly one of vehicleCapacities or fleet is required")
	}
	if req.TimeBudgetMs != nil {
		if *req.TimeBudgetMs < 0 {
			return fmt.Errorf("timeBudgetMs must be >= 0")
		}
		if maxBudget > 0 && time.Duration(*req.TimeBudgetMs)*time.Millisecond > maxBudget {
			return fmt.Errorf("timeBudgetMs must be <= %d", maxBudget.Milliseconds())
		}
	}
	if req.Lambda != nil && (*req.Lambda < 0 || math.IsNaN(*req.Lambda) || math.IsInf(*req.Lambda, 0)) {
		return fmt.Errorf("lambda must be a finite number >= 0")
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if _, err := neighborhoods(req.Moves); err != nil {
		return err
	}
	if req.CallbackURL != "" {
		u, err := url.Parse(req.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("callbackUrl must be an absolute http(s) URL")
		}
	}
	return nil
}

// neighborhoods resolves move family names; empty means all of them.
func neighborhoods(names []string) ([]opt.Neighborhood, error) {
	out := make([]opt.Neighborhood, 0, len(names))
	for _, name := range names {
		nb, ok := opt.NeighborhoodByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown move %q (allowed: relocate, swap, 2-opt, or-opt, cross-exchange)", name)
		}
		out = append(out, nb)
	}
	return out, nil
}

func validateSolverConfig(cfg *model.SolverConfig) error {
	if cfg.TimeBudgetMs != nil && *cfg.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs must be >= 0")
	}
	if cfg.Lambda != nil && (*cfg.Lambda < 0 || math.IsNaN(*cfg.Lambda) || math.IsInf(*cfg.Lambda, 0)) {
		return fmt.Errorf("lambda must be a finite number >= 0")
	}
	if cfg.MaxIterations != nil && *cfg.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	_, err := neighborhoods(cfg.Moves)
	return err
}

func defaultMoveNames() []string {
	nbs := opt.DefaultNeighborhoods()
	out := make([]string, len(nbs))
	for i, nb := range nbs {
		out[i] = nb.Name()
	}
	return out
}
