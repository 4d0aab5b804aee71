package opt

import "iter"

// TwoOpt reverses a contiguous segment of one route. Every arc inside the
// segment changes direction, so asymmetric costs are re-summed in full.
type TwoOpt struct{}

func (TwoOpt) Name() string { return "2-opt" }

func (TwoOpt) Candidates(s *Solution, cost CostFunc) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		e := newEvaluator(s, cost)
		var buf []int
		for k, r := range s.routes {
			nodes := r.nodes
			for i := 1; i < len(nodes)-2; i++ {
				for j := i + 1; j < len(nodes)-1; j++ {
					seg := buf[:0]
					for x := j; x >= i; x-- {
						seg = append(seg, nodes[x])
					}
					buf = seg
					if !yield(e.single("2-opt", k, i, j+1, seg)) {
						return
					}
				}
			}
		}
	}
}
