package opt

import "iter"

// OrOpt relocates a chain of two or three consecutive clients, forwards or
// reversed, within its route or into another route.
type OrOpt struct{}

func (OrOpt) Name() string { return "or-opt" }

func (OrOpt) Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		e := newEvaluator(s, cost)
		var buf, chain []int
		for k1, r1 := range s.routes {
			n1 := r1.nodes
			for L := 2; L <= 3; L++ {
				for i := 1; i+L <= len(n1)-1; i++ {
					for _, rev := range [2]bool{false, true} {
						for q := 1; q < len(n1); q++ {
							if q >= i && q <= i+L {
								continue
							}
							from, to, seg := moveWindow(n1, i, L, q, rev, buf)
							buf = seg
							if !yield(e.single("or-opt", k1, from, to, seg)) {
								return
							}
						}
						chain = chain[:0]
						if rev {
							for x := i + L - 1; x >= i; x-- {
								chain = append(chain, n1[x])
							}
						} else {
							chain = append(chain, n1[i:i+L]...)
						}
						for k2, r2 := range s.routes {
							if k2 == k1 || emptyDuplicate(s, k2) {
								continue
							}
							for p := 1; p < len(r2.nodes); p++ {
								if !yield(e.pair("or-opt", k1, i, i+L, nil, k2, p, p, chain)) {
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
