package opt

import "math"

// VehicleType describes a group of identical vehicles.
type VehicleType struct {
	Capacity int
	Count    int
	// MaxRouteCost bounds the travel cost of one route of this type; 0 means unbounded.
	MaxRouteCost float64
}

// Vehicle is a single fleet member after VehicleType counts are expanded.
type Vehicle struct {
	ID           int
	Type         int
	Capacity     int
	MaxRouteCost float64
}

// Instance is the immutable description of a CVRP problem.
type Instance struct {
	cost     [][]float64
	demand   []int
	vehicles []Vehicle
	depot    int

	totalDemand   int
	totalCapacity int
	maxCapacity   int
	numTypes      int
}

// BuildInstance creates an instance with one vehicle per capacity entry.
func BuildInstance(cost [][]float64, demands []int, capacities []int, depot int) (*Instance, error) {
	fleet := make([]VehicleType, len(capacities))
	for i, c := range capacities {
		fleet[i] = VehicleType{Capacity: c, Count: 1}
	}
	return NewInstance(cost, demands, fleet, depot)
}

// NewInstance validates and copies the inputs. Every failure wraps ErrMalformedInstance.
func NewInstance(cost [][]float64, demands []int, fleet []VehicleType, depot int) (*Instance, error) {
	n := len(cost)
	if n == 0 {
		return nil, malformed("cost matrix is empty")
	}
	if len(demands) != n {
		return nil, malformed("demand vector has %d entries, cost matrix has %d rows", len(demands), n)
	}
	if depot < 0 || depot >= n {
		return nil, malformed("depot index %d out of range [0,%d)", depot, n)
	}
	if demands[depot] != 0 {
		return nil, malformed("depot demand must be 0, got %d", demands[depot])
	}
	if len(fleet) == 0 {
		return nil, malformed("fleet is empty")
	}

	inst := &Instance{
		cost:     make([][]float64, n),
		demand:   make([]int, n),
		depot:    depot,
		numTypes: len(fleet),
	}
	for i, row := range cost {
		if len(row) != n {
			return nil, malformed("cost matrix row %d has %d columns, want %d", i, len(row), n)
		}
		for j, c := range row {
			if i == j {
				continue
			}
			if math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
				return nil, malformed("cost[%d][%d] = %v must be finite and non-negative", i, j, c)
			}
		}
		inst.cost[i] = append([]float64(nil), row...)
	}
	for i, d := range demands {
		if d < 0 {
			return nil, malformed("demand of node %d is negative (%d)", i, d)
		}
		inst.demand[i] = d
		inst.totalDemand += d
	}
	for t, vt := range fleet {
		if vt.Capacity <= 0 {
			return nil, malformed("vehicle type %d capacity must be positive, got %d", t, vt.Capacity)
		}
		if vt.Count <= 0 {
			return nil, malformed("vehicle type %d count must be positive, got %d", t, vt.Count)
		}
		if vt.MaxRouteCost < 0 || math.IsNaN(vt.MaxRouteCost) {
			return nil, malformed("vehicle type %d max route cost must be >= 0", t)
		}
		for k := 0; k < vt.Count; k++ {
			inst.vehicles = append(inst.vehicles, Vehicle{
				ID:           len(inst.vehicles),
				Type:         t,
				Capacity:     vt.Capacity,
				MaxRouteCost: vt.MaxRouteCost,
			})
			inst.totalCapacity += vt.Capacity
		}
		if vt.Capacity > inst.maxCapacity {
			inst.maxCapacity = vt.Capacity
		}
	}
	return inst, nil
}

// NumNodes returns the node count including the depot.
func (in *Instance) NumNodes() int { return len(in.demand) }

// Depot returns the depot node index.
func (in *Instance) Depot() int { return in.depot }

// Cost returns the directed travel cost from i to j. Self-cost is always 0.
func (in *Instance) Cost(i, j int) float64 {
	if i == j {
		return 0
	}
	return in.cost[i][j]
}

// Demand returns the demand of node i.
func (in *Instance) Demand(i int) int { return in.demand[i] }

// NumVehicles returns the expanded fleet size.
func (in *Instance) NumVehicles() int { return len(in.vehicles) }

// Vehicle returns fleet member k.
func (in *Instance) Vehicle(k int) Vehicle { return in.vehicles[k] }

// Capacities returns the capacity of each vehicle in fleet order.
func (in *Instance) Capacities() []int {
	out := make([]int, len(in.vehicles))
	for i, v := range in.vehicles {
		out[i] = v.Capacity
	}
	return out
}

// TotalDemand returns the summed demand of all clients.
func (in *Instance) TotalDemand() int { return in.totalDemand }

// TotalCapacity returns the summed capacity of the fleet.
func (in *Instance) TotalCapacity() int { return in.totalCapacity }

// Clients returns the non-depot node indices in ascending order.
func (in *Instance) Clients() []int {
	out := make([]int, 0, len(in.demand)-1)
	for i := range in.demand {
		if i != in.depot {
			out = append(out, i)
		}
	}
	return out
}
