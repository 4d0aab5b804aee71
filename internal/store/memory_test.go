package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vrpengine/internal/model"
)

func TestMemoryRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run := model.Run{ID: "r1", TenantID: "t1", Status: model.RunRunning, CreatedAt: time.Now()}
	require.NoError(t, m.SaveRun(ctx, run))

	run.Status = model.RunCompleted
	require.NoError(t, m.SaveRun(ctx, run))

	got, err := m.GetRun(ctx, "t1", "r1")
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)

	_, err = m.GetRun(ctx, "t2", "r1")
	assert.ErrorIs(t, err, ErrNotFound)

	items, _, err := m.ListRuns(ctx, "t1", "", "", 0)
	require.NoError(t, err)
	assert.Len(t, items, 1, "update must not duplicate the run in the listing")
}

func TestMemoryListRunsPagination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for i := range 5 {
		status := model.RunCompleted
		if i%2 == 1 {
			status = model.RunFailed
		}
		require.NoError(t, m.SaveRun(ctx, model.Run{ID: fmt.Sprintf("r%d", i), TenantID: "t1", Status: status}))
	}

	page, next, err := m.ListRuns(ctx, "t1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "r1", next)

	page, next, err = m.ListRuns(ctx, "t1", "", next, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3"}, []string{page[0].ID, page[1].ID})

	page, next, err = m.ListRuns(ctx, "t1", "", next, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)
	assert.Empty(t, next)

	page, _, err = m.ListRuns(ctx, "t1", model.RunFailed, "", 10)
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestMemoryListRunsCreationOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.SaveRun(ctx, model.Run{ID: id, TenantID: "t1", Status: model.RunRunning}))
	}
	// updating a run keeps its place
	require.NoError(t, m.SaveRun(ctx, model.Run{ID: "c", TenantID: "t1", Status: model.RunCompleted}))

	page, next, err := m.ListRuns(ctx, "t1", "", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, []string{page[0].ID, page[1].ID, page[2].ID})
	assert.Empty(t, next)

	page, _, err = m.ListRuns(ctx, "t1", "", "missing", 10)
	require.NoError(t, err)
	assert.Len(t, page, 3)
}

func TestMemorySolverConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg, err := m.GetSolverConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, cfg)

	lambda := 0.3
	require.NoError(t, m.SaveSolverConfig(ctx, "t1", model.SolverConfig{Lambda: &lambda}))
	cfg, err = m.GetSolverConfig(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, cfg.Lambda)
	assert.Equal(t, 0.3, *cfg.Lambda)
}

func TestMemoryCallbackQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueCallback(ctx, "t1", "r1", "run.completed", "http://example.invalid/cb", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueCallbacks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkCallback(ctx, id, false, &later, "boom", 500, 3))
	due, err = m.FetchDueCallbacks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "retry scheduled in the future is not due")

	require.NoError(t, m.FailCallback(ctx, id, "boom", 500, 3))
	d, ok := m.Delivery(id)
	require.True(t, ok)
	assert.Equal(t, DeliveryFailed, d.Status)
	assert.Equal(t, 2, d.Attempts)

	assert.ErrorIs(t, m.MarkCallback(ctx, "missing", true, nil, "", 200, 1), ErrNotFound)
}
