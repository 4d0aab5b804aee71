package opt

// CostFunc returns the cost of the directed arc i->j. The search passes the
// instance cost during descent and a penalized cost during escapes.
type CostFunc func(i, j int) float64

func routeCost(cost CostFunc, nodes []int) float64 {
	c := 0.0
	for p := 0; p+1 < len(nodes); p++ {
		c += cost(nodes[p], nodes[p+1])
	}
	return c
}

// spliceDelta returns the change in route cost when nodes[from:to] is
// replaced by seg. Requires 1 <= from <= to <= len(nodes)-1 so the arcs
// entering and leaving the window always exist.
func spliceDelta(cost CostFunc, nodes []int, from, to int, seg []int) float64 {
	removed := 0.0
	for p := from - 1; p < to; p++ {
		removed += cost(nodes[p], nodes[p+1])
	}
	added := 0.0
	prev := nodes[from-1]
	for _, v := range seg {
		added += cost(prev, v)
		prev = v
	}
	added += cost(prev, nodes[to])
	return added - removed
}
