package api

import (
	"net/http"
	"time"

	"vrpengine/internal/buildinfo"
)

// DebugJSON reports build info and which optional backends are configured.
// Secrets are reduced to presence flags.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Config
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"PORT":                   c.Port,
			"RATE_RPS":               c.RateRPS,
			"RATE_BURST":             c.RateBurst,
			"LOG_LEVEL":              c.LogLevel,
			"SOLVER_TIME_BUDGET":     c.Solver.TimeBudget.String(),
			"SOLVER_MAX_TIME_BUDGET": c.Solver.MaxTimeBudget.String(),
			"SOLVER_LAMBDA":          c.Solver.Lambda,
			"SOLVER_MAX_NODES":       c.Solver.MaxNodes,
			"CALLBACK_MAX_ATTEMPTS":  c.Callback.MaxAttempts,
			"HAS_DATABASE_URL":       c.DatabaseURL != "",
			"HAS_REDIS_URL":          c.RedisURL != "",
			"HAS_CALLBACK_SECRET":    c.Callback.Secret != "",
			"HAS_TOMTOM_API_KEY":     c.TomTom.APIKey != "",
		},
	}
	writeJSON(w, http.StatusOK, info)
}
