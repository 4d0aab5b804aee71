package opt

import (
	"context"
	"fmt"
	"math"
	"time"
)

// improveEps is the smallest delta treated as a real change.
const improveEps = 1e-9

// Status is the state of the local search machine.
type Status int

const (
	StatusSearching Status = iota
	StatusConverged
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusSearching:
		return "searching"
	case StatusConverged:
		return "converged"
	case StatusTimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Params configures Solve.
type Params struct {
	// TimeBudget bounds wall-clock search time. Zero returns the
	// construction result without any improvement iteration.
	TimeBudget time.Duration
	// Lambda weighs arc penalties during escapes, relative to the average
	// arc cost of the first local optimum. Zero disables escapes, so the
	// search converges at the first local optimum.
	Lambda float64
	// MaxIterations caps search iterations when positive.
	MaxIterations int
	// Neighborhoods defaults to DefaultNeighborhoods when empty.
	Neighborhoods []Neighborhood
	// OnImprove is called synchronously each time the incumbent improves.
	OnImprove func(Progress)
}

// DefaultParams mirrors the defaults of the service: one second, λ 0.1.
func DefaultParams() Params {
	return Params{TimeBudget: time.Second, Lambda: 0.1}
}

func (p Params) validate() error {
	if p.TimeBudget < 0 {
		return fmt.Errorf("%w: time budget %v is negative", ErrInvalidParams, p.TimeBudget)
	}
	if p.Lambda < 0 || math.IsNaN(p.Lambda) || math.IsInf(p.Lambda, 0) {
		return fmt.Errorf("%w: lambda %v must be finite and >= 0", ErrInvalidParams, p.Lambda)
	}
	if p.MaxIterations < 0 {
		return fmt.Errorf("%w: max iterations %d is negative", ErrInvalidParams, p.MaxIterations)
	}
	for i, nb := range p.Neighborhoods {
		if nb == nil {
			return fmt.Errorf("%w: neighborhood %d is nil", ErrInvalidParams, i)
		}
	}
	return nil
}

// Progress is passed to Params.OnImprove.
type Progress struct {
	Iteration int
	Cost      float64
	Elapsed   time.Duration
	Escape    bool
}

// Stats summarises one search.
type Stats struct {
	Status       Status
	Iterations   int
	Improvements int
	Escapes      int
	LocalOptima  int
	InitialCost  float64
	BestCost     float64
	FinalCost    float64
	Elapsed      time.Duration
	MoveCounts   map[string]int
}

// Result is the incumbent solution and how it was reached.
type Result struct {
	Solution *Solution
	Stats    Stats
}

// Solve constructs an initial solution and improves it until the search
// converges, the budget runs out or ctx is done. Errors are limited to
// invalid params and construction failures; running out of time is
// reported through Stats.Status.
func Solve(ctx context.Context, inst *Instance, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	sol, err := Construct(inst)
	if err != nil {
		return nil, err
	}
	return search(ctx, sol, p, start), nil
}

// Improve runs the local search from an existing feasible solution.
func Improve(ctx context.Context, sol *Solution, p Params) (*Result, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return search(ctx, sol.Clone(), p, time.Now()), nil
}

type searcher struct {
	inst      *Instance
	nbs       []Neighborhood
	penalty   []int
	lambda    float64
	penalized CostFunc
}

func search(ctx context.Context, cur *Solution, p Params, start time.Time) *Result {
	inst := cur.inst
	n := inst.NumNodes()
	sr := &searcher{inst: inst, nbs: p.Neighborhoods}
	if len(sr.nbs) == 0 {
		sr.nbs = DefaultNeighborhoods()
	}
	sr.penalized = func(i, j int) float64 {
		return inst.Cost(i, j) + sr.lambda*float64(sr.penalty[i*n+j])
	}

	deadline := start.Add(p.TimeBudget)
	best := cur.Clone()
	st := Stats{
		Status:      StatusSearching,
		InitialCost: cur.Cost(),
		MoveCounts:  map[string]int{},
	}
	improved := func(escape bool) {
		if cur.Cost() < best.Cost()-improveEps {
			best = cur.Clone()
			st.Improvements++
			if p.OnImprove != nil {
				p.OnImprove(Progress{Iteration: st.Iterations, Cost: best.Cost(), Elapsed: time.Since(start), Escape: escape})
			}
		}
	}

	for st.Status == StatusSearching {
		if ctx.Err() != nil || !time.Now().Before(deadline) ||
			(p.MaxIterations > 0 && st.Iterations >= p.MaxIterations) {
			st.Status = StatusTimedOut
			break
		}
		st.Iterations++

		if c, ok := sr.best(cur, nil); ok && c.Delta < -improveEps {
			c.Apply(cur)
			st.MoveCounts[c.Move]++
			improved(false)
			continue
		}

		st.LocalOptima++
		if p.Lambda <= 0 || !sr.escapeReady(cur, p.Lambda) {
			st.Status = StatusConverged
			break
		}
		cur.arcs(func(i, j int) {
			if i != j {
				sr.penalty[i*n+j]++
			}
		})
		c, ok := sr.best(cur, sr.penalized)
		if !ok || c.Delta >= -improveEps {
			st.Status = StatusConverged
			break
		}
		c.Apply(cur)
		st.Escapes++
		st.MoveCounts[c.Move]++
		improved(true)
	}

	st.BestCost = best.Cost()
	st.FinalCost = cur.Cost()
	st.Elapsed = time.Since(start)
	return &Result{Solution: best, Stats: st}
}

// escapeReady sizes λ once, at the first local optimum, as coef times the
// mean arc cost of that solution.
func (sr *searcher) escapeReady(cur *Solution, coef float64) bool {
	if sr.penalty != nil {
		return sr.lambda > 0
	}
	n := sr.inst.NumNodes()
	sr.penalty = make([]int, n*n)
	arcs := 0
	cur.arcs(func(_, _ int) { arcs++ })
	if arcs > 0 {
		sr.lambda = coef * cur.Cost() / float64(arcs)
	}
	return sr.lambda > 0
}

// best returns the feasible candidate with the lowest delta across all
// neighborhoods. The first candidate wins ties.
func (sr *searcher) best(s *Solution, cost CostFunc) (Candidate, bool) {
	var best Candidate
	found := false
	for _, nb := range sr.nbs {
		for c := range nb.Candidates(s, cost) {
			if !c.Feasible {
				continue
			}
			if !found || c.Delta < best.Delta {
				best = c.retain()
				found = true
			}
		}
	}
	return best, found
}
