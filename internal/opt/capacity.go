package opt

import "slices"

// CapacityTracker keeps prefix-load bookkeeping for one route sequence.
//
// prefix[k] is the cumulative demand of nodes[0..k]; prefMax and sufMax hold
// running maxima of prefix from the left and from the right so that a splice
// can be checked without rescanning the untouched parts of the route.
type CapacityTracker struct {
	demand   []int
	capacity int

	nodes   []int
	prefix  []int
	prefMax []int
	sufMax  []int
}

// NewCapacityTracker builds a tracker over a copy of nodes.
func NewCapacityTracker(inst *Instance, nodes []int, capacity int) *CapacityTracker {
	t := &CapacityTracker{demand: inst.demand, capacity: capacity}
	t.Reset(nodes)
	return t
}

// Reset replaces the tracked sequence and recomputes every prefix sum.
func (t *CapacityTracker) Reset(nodes []int) {
	t.nodes = append(t.nodes[:0], nodes...)
	t.recompute()
}

// Insert places node at pos and recomputes.
func (t *CapacityTracker) Insert(pos, node int) {
	t.nodes = slices.Insert(t.nodes, pos, node)
	t.recompute()
}

// Remove drops the node at pos and recomputes.
func (t *CapacityTracker) Remove(pos int) {
	t.nodes = slices.Delete(t.nodes, pos, pos+1)
	t.recompute()
}

func (t *CapacityTracker) recompute() {
	n := len(t.nodes)
	t.prefix = resize(t.prefix, n)
	t.prefMax = resize(t.prefMax, n)
	t.sufMax = resize(t.sufMax, n)
	sum, peak := 0, 0
	for k, v := range t.nodes {
		sum += t.demand[v]
		t.prefix[k] = sum
		if k == 0 || sum > peak {
			peak = sum
		}
		t.prefMax[k] = peak
	}
	for k := n - 1; k >= 0; k-- {
		t.sufMax[k] = t.prefix[k]
		if k+1 < n && t.sufMax[k+1] > t.sufMax[k] {
			t.sufMax[k] = t.sufMax[k+1]
		}
	}
}

func resize(s []int, n int) []int {
	if cap(s) < n {
		return make([]int, n)
	}
	return s[:n]
}

// Capacity returns the limit the tracker checks against.
func (t *CapacityTracker) Capacity() int { return t.capacity }

// Load returns the total demand on the route.
func (t *CapacityTracker) Load() int {
	if len(t.prefix) == 0 {
		return 0
	}
	return t.prefix[len(t.prefix)-1]
}

// MaxPrefixLoad returns the highest cumulative load at any point of the route.
func (t *CapacityTracker) MaxPrefixLoad() int {
	if len(t.prefMax) == 0 {
		return 0
	}
	return t.prefMax[len(t.prefMax)-1]
}

// Feasible reports whether no prefix exceeds the capacity.
func (t *CapacityTracker) Feasible() bool { return t.MaxPrefixLoad() <= t.capacity }

// SpliceLoad returns the max prefix load the route would have if
// nodes[from:to] were replaced by seg. The tracker is not modified.
func (t *CapacityTracker) SpliceLoad(from, to int, seg []int) int {
	peak, run := 0, 0
	if from > 0 {
		peak = t.prefMax[from-1]
		run = t.prefix[from-1]
	}
	for _, v := range seg {
		run += t.demand[v]
		if run > peak {
			peak = run
		}
	}
	if to < len(t.nodes) {
		shift := run
		if to > 0 {
			shift -= t.prefix[to-1]
		}
		if s := t.sufMax[to] + shift; s > peak {
			peak = s
		}
	}
	return peak
}

// FitsSplice reports whether the splice described by SpliceLoad stays within capacity.
func (t *CapacityTracker) FitsSplice(from, to int, seg []int) bool {
	return t.SpliceLoad(from, to, seg) <= t.capacity
}

func (t *CapacityTracker) clone() *CapacityTracker {
	return &CapacityTracker{
		demand:   t.demand,
		capacity: t.capacity,
		nodes:    slices.Clone(t.nodes),
		prefix:   slices.Clone(t.prefix),
		prefMax:  slices.Clone(t.prefMax),
		sufMax:   slices.Clone(t.sufMax),
	}
}
