package api

import (
	"context"
	"net/http"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"vrpengine/internal/config"
	"vrpengine/internal/matrix"
	"vrpengine/internal/metrics"
	"vrpengine/internal/store"
	"vrpengine/internal/webhooks"
)

type Server struct {
	Store   store.Store
	Pub     *webhooks.Publisher
	Broker  EventBroker
	Matrix  matrix.Provider
	Limiter *RateLimiter
	Config  config.Config

	// async runs derive from ctx and are cancelled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc
	runs   sync.WaitGroup
}

// NewServer creates a Server from cfg. If DatabaseURL is unset, uses the
// in-memory store; if RedisURL is unset or unreachable, the in-memory broker.
func NewServer(ctx context.Context, cfg config.Config) (*Server, error) {
	var s store.Store
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		s = store.NewMemory()
	} else {
		sp, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if cfg.DBMigrate {
			if err := sp.Migrate(ctx); err != nil {
				return nil, err
			}
		}
		s = sp
	}
	// Broker selection
	var broker EventBroker = NewBroker()
	if cfg.RedisURL != "" {
		if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
			broker = rb
		} else {
			log.WithError(err).Warn("redis unavailable, using in-memory event broker")
		}
	}
	srv := New(cfg, s, broker)
	if cfg.TomTom.APIKey != "" {
		tt, err := matrix.NewTomTom(cfg.TomTom.APIKey, cfg.TomTom.BaseURL, nil)
		if err != nil {
			return nil, err
		}
		if cfg.TomTom.RPS > 0 {
			tt.Limiter = rate.NewLimiter(rate.Limit(cfg.TomTom.RPS), 1)
		}
		srv.Matrix = tt
	}
	return srv, nil
}

// New wires a Server around an existing store and broker. Matrices for
// location-only requests come from great-circle estimates until a remote
// provider is set.
func New(cfg config.Config, s store.Store, broker EventBroker) *Server {
	metrics.RegisterDefault()
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		Store:  s,
		Pub:    webhooks.NewPublisher(s),
		Broker: broker,
		Matrix: matrix.Haversine{},
		Config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.RateRPS > 0 {
		srv.Limiter = NewRateLimiter(cfg.RateRPS, cfg.RateBurst)
	}
	return srv
}

// Handler returns the routed API wrapped in the access log.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Solving
	mux.HandleFunc("/v1/solve", s.rateLimited(s.SolveHandler))
	mux.HandleFunc("/v1/runs", s.RunsHandler)
	mux.HandleFunc("/v1/runs/", s.RunByIDHandler) // includes /events/stream, /events/ws

	// Solver config
	mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)
	mux.HandleFunc("/v1/admin/solver/config", s.AdminSolverConfigHandler)

	// Health & ops
	mux.HandleFunc("/healthz", s.HealthHandler)
	mux.HandleFunc("/readyz", s.ReadyHandler)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/debug/info", s.DebugJSON)

	return loggingMiddleware(mux)
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = "t_demo"
	}
	ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
	return ctx, tenant
}

type ctxKeyTenant struct{}

// NewCallbackWorker creates a background worker for run callbacks.
func (s *Server) NewCallbackWorker() *webhooks.Worker {
	return webhooks.NewWorker(s.Store, s.Config.Callback.Secret, s.Config.Callback.MaxAttempts, s.Config.Callback.Timeout)
}

// Shutdown stops async runs at their current incumbent and waits for them
// to be stored, or for ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() { s.runs.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.Broker.Close()
}
