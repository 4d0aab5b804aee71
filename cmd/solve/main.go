// Command solve reads a CVRP instance from a YAML or JSON file, solves it
// and prints the routes.
//
//	solve -budget 5s -lambda 0.1 instance.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"vrpengine/internal/config"
	"vrpengine/internal/matrix"
	"vrpengine/internal/model"
	"vrpengine/internal/opt"
)

// instanceFile is the on-disk instance. Either costMatrix or locations,
// either vehicleCapacities or fleet.
type instanceFile struct {
	CostMatrix        [][]float64      `yaml:"costMatrix"`
	Locations         []model.GeoPoint `yaml:"locations"`
	Demands           []int            `yaml:"demands"`
	VehicleCapacities []int            `yaml:"vehicleCapacities"`
	Fleet             []struct {
		Capacity     int     `yaml:"capacity"`
		Count        int     `yaml:"count"`
		MaxRouteCost float64 `yaml:"maxRouteCost"`
	} `yaml:"fleet"`
	Depot int `yaml:"depot"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)
	log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("invalid configuration")
		return 2
	}

	fs := flag.NewFlagSet("solve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	budget := fs.Duration("budget", cfg.Solver.TimeBudget, "local search time budget")
	lambda := fs.Float64("lambda", cfg.Solver.Lambda, "penalty coefficient relative to the mean arc cost; 0 disables escapes")
	maxIter := fs.Int("max-iter", cfg.Solver.MaxIterations, "iteration cap, 0 for none")
	moves := fs.String("moves", "", "comma separated move families (default all)")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	withEmpty := fs.Bool("empty", false, "include unused vehicles in the report")
	verbose := fs.Bool("v", false, "log every improvement")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: solve [flags] instance.yaml")
		fs.PrintDefaults()
		return 2
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	inst, err := loadInstance(ctx, fs.Arg(0), cfg.TomTom)
	if err != nil {
		log.WithError(err).Error("load instance")
		return 1
	}

	params := opt.Params{TimeBudget: *budget, Lambda: *lambda, MaxIterations: *maxIter}
	if *moves != "" {
		for _, name := range strings.Split(*moves, ",") {
			nb, ok := opt.NeighborhoodByName(strings.TrimSpace(name))
			if !ok {
				log.WithField("move", name).Error("unknown move")
				return 2
			}
			params.Neighborhoods = append(params.Neighborhoods, nb)
		}
	}
	params.OnImprove = func(p opt.Progress) {
		log.WithFields(log.Fields{"iteration": p.Iteration, "cost": p.Cost, "escape": p.Escape, "dur_ms": p.Elapsed.Milliseconds()}).Debug("improved")
	}

	res, err := opt.Solve(ctx, inst, params)
	if err != nil {
		log.WithError(err).Error("solve")
		if errors.Is(err, opt.ErrInfeasible) {
			return 3
		}
		return 1
	}
	var ropts []opt.ReportOption
	if *withEmpty {
		ropts = append(ropts, opt.WithEmptyRoutes())
	}
	rep := opt.NewReport(res.Solution, res.Stats, ropts...)
	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		err = enc.Encode(rep)
	} else {
		err = rep.WriteText(stdout)
	}
	if err != nil {
		log.WithError(err).Error("write report")
		return 1
	}
	return 0
}

func loadInstance(ctx context.Context, path string, tt config.TomTom) (*opt.Instance, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f instanceFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	req := model.SolveRequest{Demands: f.Demands, VehicleCapacities: f.VehicleCapacities, Depot: f.Depot}
	for _, v := range f.Fleet {
		req.Fleet = append(req.Fleet, model.VehicleTypeIn{Capacity: v.Capacity, Count: v.Count, MaxRouteCost: v.MaxRouteCost})
	}
	cost := f.CostMatrix
	if cost == nil && len(f.Locations) > 0 {
		cost, err = fetchMatrix(ctx, f.Locations, tt)
		if err != nil {
			return nil, err
		}
	}
	return opt.NewInstance(cost, req.Demands, req.FleetTypes(), req.Depot)
}

// fetchMatrix uses TomTom when a key is configured and great-circle
// estimates otherwise.
func fetchMatrix(ctx context.Context, locs []model.GeoPoint, tt config.TomTom) ([][]float64, error) {
	var p matrix.Provider = matrix.Haversine{}
	if tt.APIKey != "" {
		c, err := matrix.NewTomTom(tt.APIKey, tt.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		if tt.RPS > 0 {
			c.Limiter = rate.NewLimiter(rate.Limit(tt.RPS), 1)
		}
		p = c
	} else {
		log.Info("TOMTOM_API_KEY not set, estimating travel times from great-circle distance")
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	return p.Matrix(ctx, locs)
}
