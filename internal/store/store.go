package store

import (
	"context"
	"errors"
	"time"

	"vrpengine/internal/model"
)

// Store is the persistence interface used by the API server. Only run
// records and tenant settings are kept; search state never leaves the
// solver goroutine.
type Store interface {
	// Runs
	SaveRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) (items []model.Run, nextCursor string, err error)

	// Solver config per tenant
	GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error)
	SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error

	// Callback deliveries
	EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url string, payload []byte) (string, error)
	FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error)
	MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

// CallbackDelivery is one queued POST of a run result to a client URL.
type CallbackDelivery struct {
	ID        string
	TenantID  string
	RunID     string
	EventType string
	URL       string
	Payload   []byte
	Status    string
	Attempts  int
}

const (
	DeliveryPending   = "pending"
	DeliveryRetry     = "retry"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

var ErrNotFound = errors.New("not found")

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
