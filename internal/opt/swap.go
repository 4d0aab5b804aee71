package opt

import "iter"

// Swap exchanges two clients, within one route or across two routes.
type Swap struct{}

func (Swap) Name() string { return "swap" }

func (Swap) Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		e := newEvaluator(s, cost)
		var buf []int
		a, b := make([]int, 1), make([]int, 1)
		for k1, r1 := range s.routes {
			n1 := r1.nodes
			for i := 1; i < len(n1)-1; i++ {
				for j := i + 1; j < len(n1)-1; j++ {
					seg := append(buf[:0], n1[j])
					seg = append(seg, n1[i+1:j]...)
					seg = append(seg, n1[i])
					buf = seg
					if !yield(e.single("swap", k1, i, j+1, seg)) {
						return
					}
				}
				for k2 := k1 + 1; k2 < len(s.routes); k2++ {
					n2 := s.routes[k2].nodes
					for j := 1; j < len(n2)-1; j++ {
						a[0], b[0] = n2[j], n1[i]
						if !yield(e.pair("swap", k1, i, i+1, a, k2, j, j+1, b)) {
							return
						}
					}
				}
			}
		}
	}
}
