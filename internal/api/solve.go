package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"vrpengine/internal/matrix"
	"vrpengine/internal/metrics"
	"vrpengine/internal/model"
	"vrpengine/internal/opt"
)

const maxSolveBody = 64 << 20

// SolveHandler handles POST /v1/solve. Synchronous requests answer with
// the report; async ones with 202 and the run id.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.SolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSolveBody)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req, s.Config.Solver.MaxNodes, s.Config.Solver.MaxTimeBudget); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid solve request", err.Error(), r.URL.Path)
		return
	}
	if req.TenantID == "" {
		_, req.TenantID = s.withTenant(r)
	}

	params, err := s.solveParams(r.Context(), &req)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Load solver config failed", err.Error(), r.URL.Path)
		return
	}

	cost := req.CostMatrix
	if cost == nil {
		cost, err = s.Matrix.Matrix(r.Context(), req.Locations)
		if err != nil {
			status := http.StatusBadGateway
			if !errors.Is(err, matrix.ErrFetch) {
				status = http.StatusInternalServerError
			}
			writeProblem(w, status, "Matrix fetch failed", err.Error(), r.URL.Path)
			return
		}
	}
	inst, err := opt.NewInstance(cost, req.Demands, req.FleetTypes(), req.Depot)
	if err != nil {
		metrics.ObserveSolve("malformed", 0, 0, 0, 0)
		writeProblem(w, http.StatusBadRequest, "Malformed instance", err.Error(), r.URL.Path)
		return
	}

	run := model.Run{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		Status:       model.RunRunning,
		Nodes:        inst.NumNodes(),
		Vehicles:     inst.NumVehicles(),
		TimeBudgetMs: int(params.TimeBudget.Milliseconds()),
		Lambda:       params.Lambda,
		CallbackURL:  req.CallbackURL,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save run failed", err.Error(), r.URL.Path)
		return
	}
	var ropts []opt.ReportOption
	if req.IncludeEmpty {
		ropts = append(ropts, opt.WithEmptyRoutes())
	}

	if req.Async {
		s.runs.Add(1)
		go func() {
			defer s.runs.Done()
			s.execute(s.ctx, run, inst, params, ropts)
		}()
		writeJSON(w, http.StatusAccepted, model.SolveResponse{RunID: run.ID, Status: run.Status})
		return
	}

	run, err = s.execute(r.Context(), run, inst, params, ropts)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, opt.ErrInfeasible):
			status = http.StatusUnprocessableEntity
		case errors.Is(err, opt.ErrInvalidParams):
			status = http.StatusBadRequest
		}
		writeProblem(w, status, "Solve failed", err.Error(), "/v1/runs/"+run.ID)
		return
	}
	writeJSON(w, http.StatusOK, model.SolveResponse{RunID: run.ID, Status: run.Status, Report: run.Report})
}

// solveParams layers the request over the tenant's solver config, which
// itself overrides the service defaults.
func (s *Server) solveParams(ctx context.Context, req *model.SolveRequest) (opt.Params, error) {
	eff, err := s.effectiveSolverConfig(ctx, req.TenantID)
	if err != nil {
		return opt.Params{}, err
	}
	if req.TimeBudgetMs != nil {
		eff.TimeBudgetMs = req.TimeBudgetMs
	}
	if req.Lambda != nil {
		eff.Lambda = req.Lambda
	}
	if req.MaxIterations > 0 {
		eff.MaxIterations = &req.MaxIterations
	}
	if len(req.Moves) > 0 {
		eff.Moves = req.Moves
	}
	nbs, err := neighborhoods(eff.Moves)
	if err != nil {
		return opt.Params{}, err
	}
	return opt.Params{
		TimeBudget:    time.Duration(*eff.TimeBudgetMs) * time.Millisecond,
		Lambda:        *eff.Lambda,
		MaxIterations: *eff.MaxIterations,
		Neighborhoods: nbs,
	}, nil
}

// effectiveSolverConfig returns the service defaults overlaid with the
// tenant's stored overrides. Every pointer field is set.
func (s *Server) effectiveSolverConfig(ctx context.Context, tenant string) (model.SolverConfig, error) {
	sc := s.Config.Solver
	budget := int(sc.TimeBudget.Milliseconds())
	lambda := sc.Lambda
	iters := sc.MaxIterations
	eff := model.SolverConfig{TimeBudgetMs: &budget, Lambda: &lambda, MaxIterations: &iters}
	over, err := s.Store.GetSolverConfig(ctx, tenant)
	if err != nil || over == nil {
		return eff, err
	}
	if over.TimeBudgetMs != nil {
		b := *over.TimeBudgetMs
		if limit := int(sc.MaxTimeBudget.Milliseconds()); limit > 0 && b > limit {
			b = limit
		}
		eff.TimeBudgetMs = &b
	}
	if over.Lambda != nil {
		eff.Lambda = over.Lambda
	}
	if over.MaxIterations != nil {
		eff.MaxIterations = over.MaxIterations
	}
	if len(over.Moves) > 0 {
		eff.Moves = over.Moves
	}
	return eff, nil
}

// execute runs one solve to completion, storing the outcome and publishing
// the run events. Improvements reach the broker from a separate goroutine;
// if its buffer is full they are dropped.
func (s *Server) execute(ctx context.Context, run model.Run, inst *opt.Instance, params opt.Params, ropts []opt.ReportOption) (model.Run, error) {
	entry := log.WithFields(log.Fields{"run_id": run.ID, "tenant": run.TenantID})
	s.Broker.Publish(run.ID, SSEEvent{Type: EventRunStarted, Data: map[string]any{
		"runId": run.ID, "nodes": run.Nodes, "vehicles": run.Vehicles, "timeBudgetMs": run.TimeBudgetMs,
	}})

	progress := make(chan opt.Progress, 64)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for p := range progress {
			s.Broker.Publish(run.ID, SSEEvent{Type: EventRunImproved, Data: map[string]any{
				"runId": run.ID, "iteration": p.Iteration, "cost": p.Cost, "elapsedMs": p.Elapsed.Milliseconds(), "escape": p.Escape,
			}})
		}
	}()
	params.OnImprove = func(p opt.Progress) {
		select {
		case progress <- p:
		default:
		}
	}

	start := time.Now()
	res, err := opt.Solve(ctx, inst, params)
	close(progress)
	<-forwarded

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	// a cancelled request still records the run
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err != nil {
		label := "error"
		if errors.Is(err, opt.ErrInfeasible) {
			label = "infeasible"
		}
		metrics.ObserveSolve(label, time.Since(start).Seconds(), 0, 0, 0)
		run.Status = model.RunFailed
		run.Error = err.Error()
		if serr := s.Store.SaveRun(saveCtx, run); serr != nil {
			entry.WithError(serr).Error("save failed run")
		}
		s.Broker.Publish(run.ID, SSEEvent{Type: EventRunFailed, Data: map[string]any{"runId": run.ID, "error": run.Error}})
		s.notify(saveCtx, EventRunFailed, run)
		entry.WithError(err).Warn("solve failed")
		return run, err
	}

	st := res.Stats
	metrics.ObserveSolve(st.Status.String(), time.Since(start).Seconds(), st.Iterations, st.InitialCost, st.BestCost)
	rep := opt.NewReport(res.Solution, st, ropts...)
	run.Status = model.RunCompleted
	run.Report = &rep
	if serr := s.Store.SaveRun(saveCtx, run); serr != nil {
		entry.WithError(serr).Error("save completed run")
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: EventRunCompleted, Data: map[string]any{
		"runId": run.ID, "status": rep.Status, "totalCost": rep.TotalCost, "report": rep,
	}})
	s.notify(saveCtx, EventRunCompleted, run)
	entry.WithFields(log.Fields{
		"status": rep.Status, "cost": rep.TotalCost, "initial_cost": st.InitialCost,
		"iterations": st.Iterations, "dur_ms": st.Elapsed.Milliseconds(),
	}).Info("solve finished")
	return run, nil
}

func (s *Server) notify(ctx context.Context, eventType string, run model.Run) {
	if run.CallbackURL == "" {
		return
	}
	if _, err := s.Pub.Emit(ctx, eventType, run); err != nil {
		log.WithError(err).WithField("run_id", run.ID).Error("enqueue callback")
	}
}
