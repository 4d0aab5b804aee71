package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vrpengine/internal/model"
	"vrpengine/internal/store"
)

// RunsHandler handles GET /v1/runs
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	_, tenant := s.withTenant(r)
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeProblem(w, 400, "Invalid limit", "limit must be a positive integer", r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), tenant, q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeProblem(w, 500, "List runs failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles GET /v1/runs/{id}, /v1/runs/{id}/events/stream and /v1/runs/{id}/events/ws
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch {
	case len(parts) == 1:
		_, tenant := s.withTenant(r)
		run, err := s.Store.GetRun(r.Context(), tenant, id)
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, 404, "Run not found", id, path)
			return
		}
		if err != nil {
			writeProblem(w, 500, "Get run failed", err.Error(), path)
			return
		}
		writeJSON(w, 200, run)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "stream":
		s.runEventsSSE(w, r, id)
	case len(parts) == 3 && parts[1] == "events" && parts[2] == "ws":
		s.RunEventsWSHandler(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// subscribeRun subscribes to the run's events. When the run has already
// finished, done carries its terminal event and ch is nil.
func (s *Server) subscribeRun(r *http.Request, id string) (ch chan SSEEvent, done *SSEEvent, err error) {
	_, tenant := s.withTenant(r)
	// subscribe before reading the run so a finish in between is not lost
	ch = s.Broker.Subscribe(id)
	run, err := s.Store.GetRun(r.Context(), tenant, id)
	if err != nil {
		s.Broker.Unsubscribe(id, ch)
		return nil, nil, err
	}
	if evt, ok := terminalEvent(run); ok {
		s.Broker.Unsubscribe(id, ch)
		return nil, &evt, nil
	}
	return ch, nil, nil
}

func terminalEvent(run model.Run) (SSEEvent, bool) {
	switch run.Status {
	case model.RunCompleted:
		data := map[string]any{"runId": run.ID, "report": run.Report}
		if run.Report != nil {
			data["status"] = run.Report.Status
			data["totalCost"] = run.Report.TotalCost
		}
		return SSEEvent{Type: EventRunCompleted, Data: data}, true
	case model.RunFailed:
		return SSEEvent{Type: EventRunFailed, Data: map[string]any{"runId": run.ID, "error": run.Error}}, true
	}
	return SSEEvent{}, false
}

func (s *Server) runEventsSSE(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, 500, "Streaming unsupported", "", r.URL.Path)
		return
	}
	ch, done, err := s.subscribeRun(r, id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, 404, "Run not found", id, r.URL.Path)
		return
	}
	if err != nil {
		writeProblem(w, 500, "Get run failed", err.Error(), r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	send := func(evt SSEEvent) {
		b, _ := json.Marshal(evt.Data)
		fmt.Fprintf(w, "event: %s\n", evt.Type)
		fmt.Fprintf(w, "data: %s\n\n", string(b))
		flusher.Flush()
	}
	heartbeat := func() {
		fmt.Fprintf(w, "event: heartbeat\n")
		fmt.Fprintf(w, "data: {\"runId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
		flusher.Flush()
	}
	if done != nil {
		send(*done)
		return
	}
	defer s.Broker.Unsubscribe(id, ch)
	heartbeat()
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			send(evt)
			if evt.terminal() {
				return
			}
		case <-ticker.C:
			heartbeat()
		}
	}
}

// SolverConfigHandler returns the effective solver configuration for the tenant
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solver/config" || r.Method != http.MethodGet {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	eff, err := s.effectiveSolverConfig(r.Context(), tenant)
	if err != nil {
		writeProblem(w, 500, "Load solver config failed", err.Error(), r.URL.Path)
		return
	}
	if len(eff.Moves) == 0 {
		eff.Moves = defaultMoveNames()
	}
	writeJSON(w, 200, map[string]any{"defaults": eff, "maxTimeBudgetMs": s.Config.Solver.MaxTimeBudget.Milliseconds(), "maxNodes": s.Config.Solver.MaxNodes})
}

// Admin get/set tenant solver config
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/solver/config" {
		writeProblem(w, 404, "Not Found", "", r.URL.Path)
		return
	}
	_, tenant := s.withTenant(r)
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetSolverConfig(r.Context(), tenant)
		if err != nil {
			writeProblem(w, 500, "Load failed", err.Error(), r.URL.Path)
			return
		}
		if cfg == nil {
			cfg = &model.SolverConfig{}
		}
		writeJSON(w, 200, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct{ Config *model.SolverConfig `json:"config"` }
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, 400, "Missing config", "", r.URL.Path)
			return
		}
		if err := validateSolverConfig(body.Config); err != nil {
			writeProblem(w, 400, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveSolverConfig(r.Context(), tenant, *body.Config); err != nil {
			writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, 200, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	// Check DB and Redis connectivity when they are in use
	type pinger interface{ Ping(ctx context.Context) error }
	for name, dep := range map[string]any{"store": s.Store, "broker": s.Broker} {
		pg, ok := dep.(pinger)
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := pg.Ping(ctx)
		cancel()
		if err != nil {
			writeProblem(w, 503, "Not Ready", name+": "+err.Error(), r.URL.Path)
			return
		}
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
