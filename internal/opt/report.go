package opt

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
)

// RouteReport is the read-only projection of one vehicle's route.
type RouteReport struct {
	Vehicle  int     `json:"vehicle"`
	Capacity int     `json:"capacity"`
	Nodes    []int   `json:"nodes"`
	Loads    []int   `json:"loads"`
	Load     int     `json:"load"`
	Cost     float64 `json:"cost"`
}

// Report is the externally visible output of a solve.
type Report struct {
	Routes       []RouteReport  `json:"routes"`
	TotalCost    float64        `json:"totalCost"`
	TotalLoad    int            `json:"totalLoad"`
	VehiclesUsed int            `json:"vehiclesUsed"`
	Status       string         `json:"status"`
	Iterations   int            `json:"iterations"`
	Improvements int            `json:"improvements"`
	Escapes      int            `json:"escapes"`
	InitialCost  float64        `json:"initialCost"`
	ElapsedMs    int64          `json:"elapsedMs"`
	MoveCounts   map[string]int `json:"moveCounts,omitempty"`
}

// ReportOption adjusts NewReport.
type ReportOption func(*reportConfig)

type reportConfig struct {
	includeEmpty bool
}

// WithEmptyRoutes keeps vehicles whose route is just the depot round trip.
func WithEmptyRoutes() ReportOption {
	return func(c *reportConfig) { c.includeEmpty = true }
}

// NewReport projects sol and the search stats into a Report.
func NewReport(sol *Solution, stats Stats, opts ...ReportOption) Report {
	var cfg reportConfig
	for _, o := range opts {
		o(&cfg)
	}
	rep := Report{
		Routes:       []RouteReport{},
		TotalCost:    sol.Cost(),
		Status:       stats.Status.String(),
		Iterations:   stats.Iterations,
		Improvements: stats.Improvements,
		Escapes:      stats.Escapes,
		InitialCost:  stats.InitialCost,
		ElapsedMs:    stats.Elapsed.Milliseconds(),
		MoveCounts:   stats.MoveCounts,
	}
	for k, r := range sol.routes {
		if r.Empty() {
			if !cfg.includeEmpty {
				continue
			}
		} else {
			rep.VehiclesUsed++
		}
		rr := RouteReport{
			Vehicle:  k,
			Capacity: r.load.Capacity(),
			Nodes:    r.Nodes(),
			Loads:    make([]int, len(r.nodes)),
			Load:     r.Load(),
			Cost:     r.cost,
		}
		copy(rr.Loads, r.load.prefix)
		rep.Routes = append(rep.Routes, rr)
		rep.TotalLoad += rr.Load
	}
	return rep
}

// WriteText renders the report in the classic per-vehicle layout:
//
//	Route for vehicle 0:
//	 0 Load(0) ->  3 Load(8) ->  1 Load(13) ->  0 Load(13)
//	Distance of the route: 55
//	Load of the route: 13
func (r Report) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, rt := range r.Routes {
		fmt.Fprintf(bw, "Route for vehicle %d:\n", rt.Vehicle)
		for i, v := range rt.Nodes {
			if i > 0 {
				bw.WriteString(" -> ")
			}
			fmt.Fprintf(bw, " %d Load(%d)", v, rt.Loads[i])
		}
		bw.WriteString("\n")
		fmt.Fprintf(bw, "Distance of the route: %s\n", formatCost(rt.Cost))
		fmt.Fprintf(bw, "Load of the route: %d\n\n", rt.Load)
	}
	fmt.Fprintf(bw, "Total distance of all routes: %s\n", formatCost(r.TotalCost))
	fmt.Fprintf(bw, "Total load of all routes: %d\n", r.TotalLoad)
	fmt.Fprintf(bw, "Search: %s after %d iterations (%d improvements, %d escapes, %dms)\n",
		r.Status, r.Iterations, r.Improvements, r.Escapes, r.ElapsedMs)
	return bw.Flush()
}

func formatCost(c float64) string {
	if c == math.Trunc(c) && math.Abs(c) < 1e15 {
		return strconv.FormatInt(int64(c), 10)
	}
	return strconv.FormatFloat(c, 'f', 2, 64)
}
