package opt

import "math"

// Construct builds the initial solution by cheapest feasible insertion.
//
// Each step scans every unrouted node, every route and every insertion edge
// and commits the globally cheapest feasible triple. Ties go to the lowest
// node, then the lowest route, then the earliest position.
func Construct(inst *Instance) (*Solution, error) {
	if inst.totalDemand > inst.totalCapacity {
		return nil, infeasible("total demand %d exceeds fleet capacity %d", inst.totalDemand, inst.totalCapacity)
	}
	for v, d := range inst.demand {
		if d > inst.maxCapacity {
			return nil, infeasible("node %d demand %d exceeds the largest capacity %d", v, d, inst.maxCapacity)
		}
	}

	s := NewSolution(inst)
	unrouted := inst.Clients()
	one := make([]int, 1)
	for len(unrouted) > 0 {
		bestIdx, bestRoute, bestPos := -1, -1, -1
		bestDelta := math.Inf(1)
		for idx, node := range unrouted {
			one[0] = node
			for k, r := range s.routes {
				bound := inst.vehicles[k].MaxRouteCost
				for pos := 1; pos < len(r.nodes); pos++ {
					if !r.load.FitsSplice(pos, pos, one) {
						continue
					}
					a, b := r.nodes[pos-1], r.nodes[pos]
					delta := inst.Cost(a, node) + inst.Cost(node, b) - inst.Cost(a, b)
					if bound > 0 && r.cost+delta > bound+costTolerance {
						continue
					}
					if delta < bestDelta {
						bestIdx, bestRoute, bestPos, bestDelta = idx, k, pos, delta
					}
				}
			}
		}
		if bestIdx < 0 {
			return nil, infeasible("node %d cannot be inserted into any route", unrouted[0])
		}
		s.insert(bestRoute, bestPos, unrouted[bestIdx])
		unrouted = append(unrouted[:bestIdx], unrouted[bestIdx+1:]...)
	}
	return s, nil
}
