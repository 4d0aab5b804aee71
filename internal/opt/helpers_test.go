package opt

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

var exampleCost = [][]float64{
	{0, 10, 15, 20},
	{10, 0, 35, 25},
	{15, 35, 0, 30},
	{20, 25, 30, 0},
}

func exampleInstance(t *testing.T, capacities ...int) *Instance {
	t.Helper()
	if len(capacities) == 0 {
		capacities = []int{15, 15}
	}
	inst, err := BuildInstance(exampleCost, []int{0, 5, 10, 8}, capacities, 0)
	require.NoError(t, err)
	return inst
}

// randomInstance builds an asymmetric instance with n clients and enough
// slack that cheapest insertion always succeeds.
func randomInstance(t *testing.T, seed uint64, n, vehicles int) *Instance {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	size := n + 1
	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
		for j := range cost[i] {
			if i != j {
				cost[i][j] = float64(1 + rng.IntN(100))
			}
		}
	}
	demands := make([]int, size)
	total := 0
	for i := 1; i < size; i++ {
		demands[i] = 1 + rng.IntN(5)
		total += demands[i]
	}
	capacity := (total*3)/(vehicles*2) + 6
	inst, err := NewInstance(cost, demands, []VehicleType{{Capacity: capacity, Count: vehicles}}, 0)
	require.NoError(t, err)
	return inst
}
