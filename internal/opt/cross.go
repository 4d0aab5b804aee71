package opt

import "iter"

// CrossExchange swaps a segment of one or two clients in one route with a
// segment of one or two clients in another. The 1-for-1 case is left to
// Swap.
type CrossExchange struct{}

func (CrossExchange) Name() string { return "cross-exchange" }

func (CrossExchange) Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		e := newEvaluator(s, cost)
		for k1, r1 := range s.routes {
			n1 := r1.nodes
			for k2 := k1 + 1; k2 < len(s.routes); k2++ {
				n2 := s.routes[k2].nodes
				for l1 := 1; l1 <= 2; l1++ {
					for l2 := 1; l2 <= 2; l2++ {
						if l1 == 1 && l2 == 1 {
							continue
						}
						for i := 1; i+l1 <= len(n1)-1; i++ {
							for j := 1; j+l2 <= len(n2)-1; j++ {
								c := e.pair("cross-exchange",
									k1, i, i+l1, n2[j:j+l2],
									k2, j, j+l2, n1[i:i+l1])
								if !yield(c) {
									return
								}
							}
						}
					}
				}
			}
		}
	}
}
