package opt

import (
	"iter"
	"math"
	"slices"
)

// Neighborhood generates candidate moves for a solution. Candidates are
// evaluated under cost, or the instance cost when cost is nil; RawDelta is
// always measured on the instance cost.
type Neighborhood interface {
	Name() string
	Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate]
}

// DefaultNeighborhoods returns every built-in move family.
func DefaultNeighborhoods() []Neighborhood {
	return []Neighborhood{Relocate{}, Swap{}, TwoOpt{}, OrOpt{}, CrossExchange{}}
}

// NeighborhoodByName resolves a built-in move family.
func NeighborhoodByName(name string) (Neighborhood, bool) {
	for _, nb := range DefaultNeighborhoods() {
		if nb.Name() == name {
			return nb, true
		}
	}
	return nil, false
}

type splice struct {
	route    int
	from, to int
	seg      []int
}

// Candidate is one evaluated modification. Positions refer to the route
// arena of the solution it was generated from, so Apply is only valid on
// that solution (or a clone of it) before any other change.
type Candidate struct {
	Move     string
	Delta    float64
	RawDelta float64
	Feasible bool

	parts [2]splice
	n     int
}

// Routes returns the vehicle ids the candidate touches.
func (c Candidate) Routes() []int {
	out := make([]int, c.n)
	for i := range c.n {
		out[i] = c.parts[i].route
	}
	return out
}

// Apply mutates s in place.
func (c Candidate) Apply(s *Solution) {
	for i := range c.n {
		p := c.parts[i]
		s.splice(p.route, p.from, p.to, p.seg)
	}
}

// retain detaches segment slices from generator scratch buffers. Yielded
// candidates share those buffers until the next iteration step.
func (c Candidate) retain() Candidate {
	for i := range c.n {
		c.parts[i].seg = slices.Clone(c.parts[i].seg)
	}
	return c
}

// evaluator turns splices into candidates, vetting capacity before cost.
type evaluator struct {
	s         *Solution
	cost      CostFunc
	raw       CostFunc
	penalized bool
}

func newEvaluator(s *Solution, cost CostFunc) evaluator {
	raw := s.inst.Cost
	if cost == nil {
		return evaluator{s: s, cost: raw, raw: raw}
	}
	return evaluator{s: s, cost: cost, raw: raw, penalized: true}
}

func (e evaluator) fits(k, from, to int, seg []int) bool {
	return e.s.routes[k].load.FitsSplice(from, to, seg)
}

func (e evaluator) withinBound(k int, rawDelta float64) bool {
	bound := e.s.inst.vehicles[k].MaxRouteCost
	return bound <= 0 || e.s.routes[k].cost+rawDelta <= bound+costTolerance
}

// reject marks c infeasible while keeping the routes and splices it names.
func (c Candidate) reject() Candidate {
	c.Delta, c.RawDelta = math.Inf(1), math.Inf(1)
	c.Feasible = false
	return c
}

// single evaluates a move confined to route k.
func (e evaluator) single(move string, k, from, to int, seg []int) Candidate {
	c := Candidate{Move: move, n: 1}
	c.parts[0] = splice{route: k, from: from, to: to, seg: seg}
	if !e.fits(k, from, to, seg) {
		return c.reject()
	}
	nodes := e.s.routes[k].nodes
	raw := spliceDelta(e.raw, nodes, from, to, seg)
	if !e.withinBound(k, raw) {
		return c.reject()
	}
	c.RawDelta, c.Feasible = raw, true
	c.Delta = raw
	if e.penalized {
		c.Delta = spliceDelta(e.cost, nodes, from, to, seg)
	}
	return c
}

// pair evaluates a move that rewrites two distinct routes.
func (e evaluator) pair(move string, k1, from1, to1 int, seg1 []int, k2, from2, to2 int, seg2 []int) Candidate {
	c := Candidate{Move: move, n: 2}
	c.parts[0] = splice{route: k1, from: from1, to: to1, seg: seg1}
	c.parts[1] = splice{route: k2, from: from2, to: to2, seg: seg2}
	if !e.fits(k1, from1, to1, seg1) || !e.fits(k2, from2, to2, seg2) {
		return c.reject()
	}
	n1, n2 := e.s.routes[k1].nodes, e.s.routes[k2].nodes
	r1 := spliceDelta(e.raw, n1, from1, to1, seg1)
	r2 := spliceDelta(e.raw, n2, from2, to2, seg2)
	if !e.withinBound(k1, r1) || !e.withinBound(k2, r2) {
		return c.reject()
	}
	c.RawDelta, c.Feasible = r1+r2, true
	c.Delta = c.RawDelta
	if e.penalized {
		c.Delta = spliceDelta(e.cost, n1, from1, to1, seg1) + spliceDelta(e.cost, n2, from2, to2, seg2)
	}
	return c
}

// moveWindow returns the rewrite of nodes when the chain of length L at
// position i is reinserted so that it precedes the node currently at q
// (q in [1, len(nodes)-1], q outside [i, i+L]). When reverse is set the
// chain is inserted backwards. The result covers nodes[from:to].
func moveWindow(nodes []int, i, L, q int, reverse bool, buf []int) (from, to int, seg []int) {
	chain := nodes[i : i+L]
	seg = buf[:0]
	appendChain := func() {
		if reverse {
			for x := L - 1; x >= 0; x-- {
				seg = append(seg, chain[x])
			}
			return
		}
		seg = append(seg, chain...)
	}
	if q < i {
		from, to = q, i+L
		appendChain()
		seg = append(seg, nodes[q:i]...)
		return from, to, seg
	}
	from, to = i, q
	seg = append(seg, nodes[i+L:q]...)
	appendChain()
	return from, to, seg
}

// emptyDuplicate reports whether route k is empty and an earlier empty route
// of the same vehicle type exists. Such routes yield identical candidates.
func emptyDuplicate(s *Solution, k int) bool {
	r := s.routes[k]
	if !r.Empty() {
		return false
	}
	t := s.inst.vehicles[k].Type
	for j := 0; j < k; j++ {
		if s.routes[j].Empty() && s.inst.vehicles[j].Type == t {
			return true
		}
	}
	return false
}
