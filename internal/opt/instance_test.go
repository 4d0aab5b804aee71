package opt

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceAccessors(t *testing.T) {
	inst, err := NewInstance(exampleCost, []int{0, 5, 10, 8}, []VehicleType{
		{Capacity: 15, Count: 2},
		{Capacity: 30, Count: 1, MaxRouteCost: 90},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, 4, inst.NumNodes())
	assert.Equal(t, 0, inst.Depot())
	assert.Equal(t, 3, inst.NumVehicles())
	assert.Equal(t, []int{15, 15, 30}, inst.Capacities())
	assert.Equal(t, 23, inst.TotalDemand())
	assert.Equal(t, 60, inst.TotalCapacity())
	assert.Equal(t, []int{1, 2, 3}, inst.Clients())
	assert.Equal(t, 35.0, inst.Cost(1, 2))
	assert.Equal(t, Vehicle{ID: 2, Type: 1, Capacity: 30, MaxRouteCost: 90}, inst.Vehicle(2))
}

func TestInstanceIgnoresDiagonal(t *testing.T) {
	cost := [][]float64{
		{math.NaN(), 4},
		{3, -1},
	}
	inst, err := BuildInstance(cost, []int{0, 1}, []int{5}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, inst.Cost(0, 0))
	assert.Equal(t, 0.0, inst.Cost(1, 1))
	assert.Equal(t, 4.0, inst.Cost(0, 1))
	assert.Equal(t, 3.0, inst.Cost(1, 0))
}

func TestInstanceCopiesInputs(t *testing.T) {
	cost := [][]float64{{0, 1}, {1, 0}}
	demands := []int{0, 2}
	inst, err := BuildInstance(cost, demands, []int{5}, 0)
	require.NoError(t, err)

	cost[0][1] = 99
	demands[1] = 50
	assert.Equal(t, 1.0, inst.Cost(0, 1))
	assert.Equal(t, 2, inst.Demand(1))
}

func TestNewInstanceMalformed(t *testing.T) {
	square := [][]float64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}}
	fleet := []VehicleType{{Capacity: 10, Count: 1}}
	cases := []struct {
		name    string
		cost    [][]float64
		demands []int
		fleet   []VehicleType
		depot   int
	}{
		{"empty matrix", nil, nil, fleet, 0},
		{"ragged row", [][]float64{{0, 1, 1}, {1, 0}, {1, 1, 0}}, []int{0, 1, 1}, fleet, 0},
		{"demand length", square, []int{0, 1}, fleet, 0},
		{"depot out of range", square, []int{0, 1, 1}, fleet, 3},
		{"negative depot", square, []int{0, 1, 1}, fleet, -1},
		{"depot demand", square, []int{2, 1, 1}, fleet, 0},
		{"negative demand", square, []int{0, -1, 1}, fleet, 0},
		{"negative cost", [][]float64{{0, -1, 1}, {1, 0, 1}, {1, 1, 0}}, []int{0, 1, 1}, fleet, 0},
		{"nan cost", [][]float64{{0, math.NaN(), 1}, {1, 0, 1}, {1, 1, 0}}, []int{0, 1, 1}, fleet, 0},
		{"infinite cost", [][]float64{{0, 1, 1}, {math.Inf(1), 0, 1}, {1, 1, 0}}, []int{0, 1, 1}, fleet, 0},
		{"no fleet", square, []int{0, 1, 1}, nil, 0},
		{"zero capacity", square, []int{0, 1, 1}, []VehicleType{{Capacity: 0, Count: 1}}, 0},
		{"zero count", square, []int{0, 1, 1}, []VehicleType{{Capacity: 5, Count: 0}}, 0},
		{"negative route bound", square, []int{0, 1, 1}, []VehicleType{{Capacity: 5, Count: 1, MaxRouteCost: -3}}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInstance(tc.cost, tc.demands, tc.fleet, tc.depot)
			require.ErrorIs(t, err, ErrMalformedInstance)
		})
	}
}

func TestBuildInstanceRejectsEmptyFleet(t *testing.T) {
	_, err := BuildInstance(exampleCost, []int{0, 5, 10, 8}, nil, 0)
	require.ErrorIs(t, err, ErrMalformedInstance)
}
