package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"vrpengine/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu    sync.Mutex
	runs  map[string]model.Run          // id -> run
	byTen map[string][]string           // tenant -> run ids, creation order
	cfg   map[string]model.SolverConfig // tenant -> config
	// Callback queue state
	deliveries map[string]*memDelivery // id -> delivery state
	order      []string                // delivery ids, enqueue order
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		byTen:      map[string][]string{},
		cfg:        map[string]model.SolverConfig{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments CallbackDelivery with scheduling/metrics
type memDelivery struct {
	CallbackDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.byTen[run.TenantID] = append(m.byTen[run.TenantID], run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns pages through a tenant's runs in creation order. The cursor is
// the id of the last run of the previous page; an unknown cursor starts
// from the beginning.
func (m *Memory) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTen[tenantID]
	start := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i + 1
				break
			}
		}
	}
	limit = clampLimit(limit)
	out := []model.Run{}
	next := ""
	for _, id := range ids[start:] {
		r := m.runs[id]
		if status != "" && r.Status != status {
			continue
		}
		if len(out) == limit {
			next = out[len(out)-1].ID
			break
		}
		out = append(out, r)
	}
	return out, next, nil
}

func (m *Memory) GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cfg[tenantID]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *Memory) SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg[tenantID] = cfg
	return nil
}

// Callback deliveries
func (m *Memory) EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	m.deliveries[id] = &memDelivery{
		CallbackDelivery: CallbackDelivery{ID: id, TenantID: tenantID, RunID: runID, EventType: eventType, URL: url, Payload: payload, Status: DeliveryPending},
		NextAttemptAt:    time.Now(),
	}
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []CallbackDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.CallbackDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = DeliveryRetry
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	return nil
}

// Delivery returns the current state of a queued callback.
func (m *Memory) Delivery(id string) (CallbackDelivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return CallbackDelivery{}, false
	}
	return d.CallbackDelivery, true
}
