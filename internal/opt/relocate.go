package opt

import "iter"

// Relocate moves a single client to another position in the same or a
// different route.
type Relocate struct{}

func (Relocate) Name() string { return "relocate" }

func (Relocate) Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		e := newEvaluator(s, cost)
		var buf []int
		one := make([]int, 1)
		for k1, r1 := range s.routes {
			n1 := r1.nodes
			for i := 1; i < len(n1)-1; i++ {
				for q := 1; q < len(n1); q++ {
					if q == i || q == i+1 {
						continue
					}
					from, to, seg := moveWindow(n1, i, 1, q, false, buf)
					buf = seg
					if !yield(e.single("relocate", k1, from, to, seg)) {
						return
					}
				}
				one[0] = n1[i]
				for k2, r2 := range s.routes {
					if k2 == k1 || emptyDuplicate(s, k2) {
						continue
					}
					for p := 1; p < len(r2.nodes); p++ {
						if !yield(e.pair("relocate", k1, i, i+1, nil, k2, p, p, one)) {
							return
						}
					}
				}
			}
		}
	}
}
