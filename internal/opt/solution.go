package opt

import (
	"fmt"
	"math"
	"slices"
)

// costTolerance absorbs float drift when comparing cached and recomputed costs.
const costTolerance = 1e-6

// Route is the ordered node sequence served by one vehicle. It always
// starts and ends at the depot; an empty route is [depot, depot].
type Route struct {
	Vehicle int

	nodes []int
	cost  float64
	load  *CapacityTracker
}

// Nodes returns a copy of the node sequence including both depot visits.
func (r *Route) Nodes() []int { return slices.Clone(r.nodes) }

// Len returns the number of positions including both depot visits.
func (r *Route) Len() int { return len(r.nodes) }

// Node returns the node at position pos.
func (r *Route) Node(pos int) int { return r.nodes[pos] }

// Clients returns the number of non-depot stops.
func (r *Route) Clients() int { return len(r.nodes) - 2 }

// Empty reports whether the route visits no client.
func (r *Route) Empty() bool { return len(r.nodes) <= 2 }

// Cost returns the raw travel cost of the route.
func (r *Route) Cost() float64 { return r.cost }

// Load returns the total demand carried.
func (r *Route) Load() int { return r.load.Load() }

// Tracker exposes the route's capacity bookkeeping.
func (r *Route) Tracker() *CapacityTracker { return r.load }

func (r *Route) clone() *Route {
	return &Route{Vehicle: r.Vehicle, nodes: slices.Clone(r.nodes), cost: r.cost, load: r.load.clone()}
}

// Solution is a route arena indexed by vehicle id plus the aggregate cost.
type Solution struct {
	inst   *Instance
	routes []*Route
	cost   float64
}

// NewSolution returns a solution where every vehicle holds the trivial route.
func NewSolution(inst *Instance) *Solution {
	s := &Solution{inst: inst, routes: make([]*Route, inst.NumVehicles())}
	for k := range s.routes {
		nodes := []int{inst.depot, inst.depot}
		s.routes[k] = &Route{
			Vehicle: k,
			nodes:   nodes,
			load:    NewCapacityTracker(inst, nodes, inst.vehicles[k].Capacity),
		}
	}
	return s
}

// SolutionFromRoutes builds a solution from explicit node sequences, one per
// vehicle. Sequences must include both depot visits. The result is not
// validated; call Validate when the input is untrusted.
func SolutionFromRoutes(inst *Instance, routes [][]int) (*Solution, error) {
	if len(routes) != inst.NumVehicles() {
		return nil, fmt.Errorf("opt: %d routes for %d vehicles", len(routes), inst.NumVehicles())
	}
	s := NewSolution(inst)
	for k, nodes := range routes {
		if len(nodes) < 2 {
			return nil, fmt.Errorf("opt: route %d has %d positions", k, len(nodes))
		}
		for _, v := range nodes {
			if v < 0 || v >= inst.NumNodes() {
				return nil, fmt.Errorf("opt: route %d references node %d out of range", k, v)
			}
		}
		r := s.routes[k]
		r.nodes = slices.Clone(nodes)
		r.load.Reset(r.nodes)
		r.cost = routeCost(inst.Cost, r.nodes)
	}
	s.recost()
	return s, nil
}

// Instance returns the instance the solution belongs to.
func (s *Solution) Instance() *Instance { return s.inst }

// Routes returns the route arena. Callers must not mutate the routes.
func (s *Solution) Routes() []*Route { return s.routes }

// Route returns the route of vehicle k.
func (s *Solution) Route(k int) *Route { return s.routes[k] }

// Cost returns the aggregate raw cost.
func (s *Solution) Cost() float64 { return s.cost }

// Load returns the aggregate assigned demand.
func (s *Solution) Load() int {
	total := 0
	for _, r := range s.routes {
		total += r.Load()
	}
	return total
}

// UsedVehicles counts non-empty routes.
func (s *Solution) UsedVehicles() int {
	n := 0
	for _, r := range s.routes {
		if !r.Empty() {
			n++
		}
	}
	return n
}

// Clone returns a deep copy that shares only the instance.
func (s *Solution) Clone() *Solution {
	c := &Solution{inst: s.inst, routes: make([]*Route, len(s.routes)), cost: s.cost}
	for k, r := range s.routes {
		c.routes[k] = r.clone()
	}
	return c
}

// Validate checks coverage, depot endpoints, repeats, prefix capacity,
// route cost bounds and that cached costs match the instance.
func (s *Solution) Validate() error {
	inst := s.inst
	seen := make([]int, inst.NumNodes())
	total := 0.0
	for k, r := range s.routes {
		n := len(r.nodes)
		if n < 2 || r.nodes[0] != inst.depot || r.nodes[n-1] != inst.depot {
			return fmt.Errorf("opt: route %d does not start and end at the depot", k)
		}
		for _, v := range r.nodes[1 : n-1] {
			if v == inst.depot {
				return fmt.Errorf("opt: route %d visits the depot mid-route", k)
			}
			seen[v]++
		}
		fresh := NewCapacityTracker(inst, r.nodes, inst.vehicles[k].Capacity)
		if !fresh.Feasible() {
			return fmt.Errorf("opt: route %d exceeds capacity %d (peak %d)", k, fresh.Capacity(), fresh.MaxPrefixLoad())
		}
		if fresh.Load() != r.Load() {
			return fmt.Errorf("opt: route %d cached load %d, recomputed %d", k, r.Load(), fresh.Load())
		}
		c := routeCost(inst.Cost, r.nodes)
		if math.Abs(c-r.cost) > costTolerance {
			return fmt.Errorf("opt: route %d cached cost %.6f, recomputed %.6f", k, r.cost, c)
		}
		if bound := inst.vehicles[k].MaxRouteCost; bound > 0 && c > bound+costTolerance {
			return fmt.Errorf("opt: route %d cost %.3f exceeds bound %.3f", k, c, bound)
		}
		total += c
	}
	for v, cnt := range seen {
		if v == inst.depot {
			continue
		}
		if cnt != 1 {
			return fmt.Errorf("opt: node %d visited %d times", v, cnt)
		}
	}
	if math.Abs(total-s.cost) > costTolerance*float64(len(s.routes)+1) {
		return fmt.Errorf("opt: cached total cost %.6f, recomputed %.6f", s.cost, total)
	}
	return nil
}

// splice replaces positions [from,to) of route k with seg.
func (s *Solution) splice(k, from, to int, seg []int) {
	r := s.routes[k]
	nodes := make([]int, 0, len(r.nodes)-(to-from)+len(seg))
	nodes = append(nodes, r.nodes[:from]...)
	nodes = append(nodes, seg...)
	nodes = append(nodes, r.nodes[to:]...)
	r.nodes = nodes
	r.load.Reset(nodes)
	r.cost = routeCost(s.inst.Cost, nodes)
	s.recost()
}

// insert places node at pos in route k.
func (s *Solution) insert(k, pos, node int) {
	r := s.routes[k]
	r.nodes = slices.Insert(r.nodes, pos, node)
	r.load.Insert(pos, node)
	r.cost = routeCost(s.inst.Cost, r.nodes)
	s.recost()
}

func (s *Solution) recost() {
	s.cost = 0
	for _, r := range s.routes {
		s.cost += r.cost
	}
}

// arcs calls fn for every directed arc of every non-empty route.
func (s *Solution) arcs(fn func(i, j int)) {
	for _, r := range s.routes {
		if r.Empty() {
			continue
		}
		for p := 0; p+1 < len(r.nodes); p++ {
			fn(r.nodes[p], r.nodes[p+1])
		}
	}
}
