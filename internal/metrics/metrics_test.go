package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveSolve(t *testing.T) {
	RegisterDefault()
	before := testutil.ToFloat64(SolveRuns.WithLabelValues("converged"))
	ObserveSolve("converged", 0.2, 40, 100, 80)
	if got := testutil.ToFloat64(SolveRuns.WithLabelValues("converged")); got != before+1 {
		t.Fatalf("solve_runs_total{converged}: got %v want %v", got, before+1)
	}
	ObserveSolve("infeasible", 0.01, 0, 0, 0)
	if got := testutil.ToFloat64(SolveRuns.WithLabelValues("infeasible")); got < 1 {
		t.Fatalf("solve_runs_total{infeasible}: got %v", got)
	}
}

func TestHandlerExposesSolveMetrics(t *testing.T) {
	ObserveSolve("timed_out", 1, 10, 50, 45)
	rr := httptest.NewRecorder()
	Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != 200 {
		t.Fatalf("metrics: got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"solve_runs_total", "solve_duration_seconds", "solve_cost_improvement_ratio"} {
		if !strings.Contains(body, name) {
			t.Fatalf("missing %s in exposition", name)
		}
	}
}
