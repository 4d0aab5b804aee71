package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpengine/internal/config"
	"vrpengine/internal/matrix"
	"vrpengine/internal/model"
	"vrpengine/internal/store"
)

const exampleBody = `{"costMatrix":[[0,10,15,20],[10,0,35,25],[15,35,0,30],[20,25,30,0]],"demands":[0,5,10,8],"vehicleCapacities":[15,15],"depot":0,"timeBudgetMs":100}`

func newTestServer(t *testing.T, mutate ...func(*config.Config)) (*Server, *store.Memory) {
	t.Helper()
	cfg := config.Default()
	cfg.RateRPS = 0
	for _, m := range mutate {
		m(&cfg)
	}
	mem := store.NewMemory()
	s := New(cfg, mem, NewBroker())
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s, mem
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_test")
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthReady(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	if rr := doJSON(t, h, http.MethodGet, "/healthz", ""); rr.Code != 200 {
		t.Fatalf("health: got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/readyz", ""); rr.Code != 200 {
		t.Fatalf("ready: got %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/debug/info", ""); rr.Code != 200 {
		t.Fatalf("debug: got %d", rr.Code)
	}
	rr := doJSON(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, 200, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total")
}

func TestSolveSync(t *testing.T) {
	s, mem := newTestServer(t)
	rr := doJSON(t, s.Handler(), http.MethodPost, "/v1/solve", exampleBody)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp model.SolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Report)
	assert.Equal(t, model.RunCompleted, resp.Status)
	assert.Equal(t, 85.0, resp.Report.TotalCost)
	assert.Equal(t, 23, resp.Report.TotalLoad)
	assert.Contains(t, []string{"converged", "timed_out"}, resp.Report.Status)

	run, err := mem.GetRun(context.Background(), "t_test", resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestSolveErrors(t *testing.T) {
	s, mem := newTestServer(t)
	h := s.Handler()
	cases := map[string]struct {
		body string
		code int
	}{
		"invalid json":      {`{`, 400},
		"matrix and locs":   {`{"costMatrix":[[0]],"locations":[{"lat":0,"lng":0}],"demands":[0],"vehicleCapacities":[1]}`, 400},
		"no fleet":          {`{"costMatrix":[[0,1],[1,0]],"demands":[0,1]}`, 400},
		"unknown move":      {`{"costMatrix":[[0,1],[1,0]],"demands":[0,1],"vehicleCapacities":[1],"moves":["3-opt"]}`, 400},
		"negative lambda":   {`{"costMatrix":[[0,1],[1,0]],"demands":[0,1],"vehicleCapacities":[1],"lambda":-1}`, 400},
		"budget too large":  {`{"costMatrix":[[0,1],[1,0]],"demands":[0,1],"vehicleCapacities":[1],"timeBudgetMs":3600000}`, 400},
		"bad callback":      {`{"costMatrix":[[0,1],[1,0]],"demands":[0,1],"vehicleCapacities":[1],"callbackUrl":"ftp://x"}`, 400},
		"malformed demands": {`{"costMatrix":[[0,1],[1,0]],"demands":[0],"vehicleCapacities":[1]}`, 400},
		"depot demand":      {`{"costMatrix":[[0,1],[1,0]],"demands":[2,1],"vehicleCapacities":[5]}`, 400},
		"infeasible":        {`{"costMatrix":[[0,1],[1,0]],"demands":[0,20],"vehicleCapacities":[15],"timeBudgetMs":10}`, 422},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := doJSON(t, h, http.MethodPost, "/v1/solve", tc.body)
			assert.Equal(t, tc.code, rr.Code, rr.Body.String())
			var p Problem
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
			assert.Equal(t, tc.code, p.Status)
		})
	}

	failed, _, err := mem.ListRuns(context.Background(), "t_test", model.RunFailed, "", 10)
	require.NoError(t, err)
	require.Len(t, failed, 1, "only the infeasible request creates a run")
	assert.Contains(t, failed[0].Error, "infeasible")
}

type failingMatrix struct{}

func (failingMatrix) Matrix(context.Context, []model.GeoPoint) ([][]float64, error) {
	return nil, fmt.Errorf("%w: status 503", matrix.ErrFetch)
}

func TestSolveLocations(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"locations":[{"lat":52.52,"lng":13.40},{"lat":52.50,"lng":13.42},{"lat":52.53,"lng":13.38}],"demands":[0,1,1],"vehicleCapacities":[2],"timeBudgetMs":20}`
	rr := doJSON(t, s.Handler(), http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	s.Matrix = failingMatrix{}
	rr = doJSON(t, s.Handler(), http.MethodPost, "/v1/solve", body)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func startAsync(t *testing.T, h http.Handler, body string) string {
	t.Helper()
	body = strings.TrimSuffix(body, "}") + `,"async":true}`
	rr := doJSON(t, h, http.MethodPost, "/v1/solve", body)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	var resp model.SolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

func waitRun(t *testing.T, h http.Handler, id string) model.Run {
	t.Helper()
	var run model.Run
	require.Eventually(t, func() bool {
		rr := doJSON(t, h, http.MethodGet, "/v1/runs/"+id, "")
		if rr.Code != 200 {
			return false
		}
		_ = json.Unmarshal(rr.Body.Bytes(), &run)
		return run.Status == model.RunCompleted || run.Status == model.RunFailed
	}, 5*time.Second, 20*time.Millisecond)
	return run
}

func TestSolveAsyncAndRuns(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := startAsync(t, h, exampleBody)
	run := waitRun(t, h, id)
	require.Equal(t, model.RunCompleted, run.Status)
	require.NotNil(t, run.Report)
	assert.Equal(t, 85.0, run.Report.TotalCost)

	rr := doJSON(t, h, http.MethodGet, "/v1/runs?limit=10", "")
	require.Equal(t, 200, rr.Code)
	var page struct {
		Items      []model.Run `json:"items"`
		NextCursor string      `json:"nextCursor"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)

	assert.Equal(t, 404, doJSON(t, h, http.MethodGet, "/v1/runs/nope", "").Code)
	assert.Equal(t, 400, doJSON(t, h, http.MethodGet, "/v1/runs?limit=x", "").Code)

	// other tenants cannot see the run
	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/"+id, nil)
	req.Header.Set("X-Tenant-Id", "t_other")
	h.ServeHTTP(rr, req)
	assert.Equal(t, 404, rr.Code)
}

func TestRunEventsSSEAfterFinish(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()
	id := startAsync(t, h, exampleBody)
	waitRun(t, h, id)

	rr := doJSON(t, h, http.MethodGet, "/v1/runs/"+id+"/events/stream", "")
	require.Equal(t, 200, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), "event: "+EventRunCompleted)
}

func TestRunEventsSSELive(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := strings.Replace(exampleBody, `"timeBudgetMs":100`, `"timeBudgetMs":300`, 1)
	id := startAsync(t, s.Handler(), body)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/runs/"+id+"/events/stream", nil)
	req.Header.Set("X-Tenant-Id", "t_test")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var events []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if ev, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
			events = append(events, ev)
		}
	}
	require.NotEmpty(t, events)
	assert.Equal(t, EventRunCompleted, events[len(events)-1], "stream ends with the terminal event")
}

func TestRunEventsWebSocket(t *testing.T) {
	s, _ := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body := strings.Replace(exampleBody, `"timeBudgetMs":100`, `"timeBudgetMs":300`, 1)
	id := startAsync(t, s.Handler(), body)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/runs/" + id + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"X-Tenant-Id": []string{"t_test"}})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(wsMessage{Type: "connection_init"}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last SSEEvent
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "complete" {
			break
		}
		if msg.Type == "next" {
			require.NoError(t, json.Unmarshal(msg.Payload, &last))
		}
	}
	assert.Equal(t, EventRunCompleted, last.Type)
}

func TestRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Config) { c.RateRPS = 0.001; c.RateBurst = 1 })
	h := s.Handler()
	assert.Equal(t, 400, doJSON(t, h, http.MethodPost, "/v1/solve", `{`).Code)
	rr := doJSON(t, h, http.MethodPost, "/v1/solve", `{`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
}

func TestSolverConfig(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rr := doJSON(t, h, http.MethodPut, "/v1/admin/solver/config", `{"config":{"lambda":0.25,"moves":["relocate","2-opt"]}}`)
	require.Equal(t, 200, rr.Code, rr.Body.String())
	assert.Equal(t, 400, doJSON(t, h, http.MethodPut, "/v1/admin/solver/config", `{"config":{"lambda":-2}}`).Code)
	assert.Equal(t, 400, doJSON(t, h, http.MethodPut, "/v1/admin/solver/config", `{}`).Code)

	rr = doJSON(t, h, http.MethodGet, "/v1/solver/config", "")
	require.Equal(t, 200, rr.Code)
	var out struct{ Defaults model.SolverConfig `json:"defaults"` }
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.NotNil(t, out.Defaults.Lambda)
	assert.Equal(t, 0.25, *out.Defaults.Lambda)
	assert.Equal(t, []string{"relocate", "2-opt"}, out.Defaults.Moves)
	require.NotNil(t, out.Defaults.TimeBudgetMs)
	assert.Equal(t, 1000, *out.Defaults.TimeBudgetMs)

	// the tenant's settings apply to its solves
	rr = doJSON(t, h, http.MethodPost, "/v1/solve", exampleBody)
	require.Equal(t, 200, rr.Code)
	var resp model.SolveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	for move := range resp.Report.MoveCounts {
		assert.Contains(t, []string{"relocate", "2-opt"}, move)
	}
}

func TestSolveCallback(t *testing.T) {
	got := make(chan []byte, 1)
	cb := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if r.Header.Get("X-Signature") != "" {
			got <- b
		}
		w.WriteHeader(204)
	}))
	defer cb.Close()

	s, _ := newTestServer(t, func(c *config.Config) { c.Callback.Secret = "shh" })
	worker := s.NewCallbackWorker()
	worker.Interval = 10 * time.Millisecond
	worker.Start()
	defer close(worker.Stop)

	body := strings.TrimSuffix(exampleBody, "}") + fmt.Sprintf(`,"callbackUrl":%q}`, cb.URL)
	rr := doJSON(t, s.Handler(), http.MethodPost, "/v1/solve", body)
	require.Equal(t, 200, rr.Code, rr.Body.String())

	select {
	case b := <-got:
		var env struct {
			Type string    `json:"type"`
			Data model.Run `json:"data"`
		}
		require.NoError(t, json.Unmarshal(b, &env))
		assert.Equal(t, EventRunCompleted, env.Type)
		assert.Equal(t, model.RunCompleted, env.Data.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("callback not delivered")
	}
}

func TestMetricPath(t *testing.T) {
	assert.Equal(t, "/v1/runs/{id}", metricPath("/v1/runs/abc"))
	assert.Equal(t, "/v1/runs/{id}/events/stream", metricPath("/v1/runs/abc/events/stream"))
	assert.Equal(t, "/v1/solve", metricPath("/v1/solve"))
	assert.Equal(t, "/v1/runs/", metricPath("/v1/runs/"))
}

