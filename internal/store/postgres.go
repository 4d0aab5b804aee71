package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"vrpengine/internal/model"
	"vrpengine/internal/opt"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db  *sql.DB
	dsn string
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db, dsn: dsn}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate brings the schema up to the latest embedded migration. It runs
// on its own connection handle, which the migrator closes when done.
func (p *Postgres) Migrate(ctx context.Context) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	db, err := sql.Open("pgx", p.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	drv, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", drv)
	if err != nil {
		_ = drv.Close()
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const runColumns = `id::text, tenant_id, status, nodes, vehicles, time_budget_ms, lambda, report, COALESCE(error,''), COALESCE(callback_url,''), created_at, finished_at`

// SaveRun inserts the run or overwrites its mutable fields.
func (p *Postgres) SaveRun(ctx context.Context, run model.Run) error {
	var report any
	if run.Report != nil {
		b, err := json.Marshal(run.Report)
		if err != nil {
			return err
		}
		report = b
	}
	_, err := p.db.ExecContext(ctx, `INSERT INTO solve_runs (id, tenant_id, status, nodes, vehicles, time_budget_ms, lambda, report, error, callback_url, created_at, finished_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO UPDATE SET status=$3, report=$8, error=$9, finished_at=$12`,
		run.ID, run.TenantID, run.Status, run.Nodes, run.Vehicles, run.TimeBudgetMs, run.Lambda, report,
		nullIfEmpty(run.Error), nullIfEmpty(run.CallbackURL), run.CreatedAt, run.FinishedAt)
	return err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Run{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM solve_runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns pages through a tenant's runs in creation order, ties broken
// by id. The cursor is the id of the last run of the previous page; an
// unknown cursor starts from the beginning.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	limit = clampLimit(limit)
	q := `SELECT ` + runColumns + ` FROM solve_runs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if after, ok, err := p.cursorKey(ctx, tenantID, cursor); err != nil {
		return nil, "", err
	} else if ok {
		args = append(args, after, cursor)
		q += fmt.Sprintf(` AND (created_at, id) > ($%d, $%d::uuid)`, len(args)-1, len(args))
	}
	args = append(args, limit+1)
	q += fmt.Sprintf(` ORDER BY created_at, id LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	next := ""
	if len(out) > limit {
		out = out[:limit]
		next = out[limit-1].ID
	}
	return out, next, nil
}

// cursorKey resolves a cursor id to the creation time of its run.
func (p *Postgres) cursorKey(ctx context.Context, tenantID, cursor string) (time.Time, bool, error) {
	if cursor == "" {
		return time.Time{}, false, nil
	}
	if _, err := uuid.Parse(cursor); err != nil {
		return time.Time{}, false, nil
	}
	var created time.Time
	err := p.db.QueryRowContext(ctx, `SELECT created_at FROM solve_runs WHERE tenant_id=$1 AND id=$2`, tenantID, cursor).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return created, true, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(s scanner) (model.Run, error) {
	var r model.Run
	var report []byte
	var finished sql.NullTime
	if err := s.Scan(&r.ID, &r.TenantID, &r.Status, &r.Nodes, &r.Vehicles, &r.TimeBudgetMs, &r.Lambda, &report, &r.Error, &r.CallbackURL, &r.CreatedAt, &finished); err != nil {
		return model.Run{}, err
	}
	if len(report) > 0 {
		var rep opt.Report
		if err := json.Unmarshal(report, &rep); err != nil {
			return model.Run{}, fmt.Errorf("decode report of run %s: %w", r.ID, err)
		}
		r.Report = &rep
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) GetSolverConfig(ctx context.Context, tenantID string) (*model.SolverConfig, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM solver_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg model.SolverConfig
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p *Postgres) SaveSolverConfig(ctx context.Context, tenantID string, cfg model.SolverConfig) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO solver_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
	return err
}

func (p *Postgres) EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx, `INSERT INTO callback_deliveries (id, tenant_id, run_id, event_type, url, payload, status, attempts, next_attempt_at)
        VALUES ($1,$2,$3,$4,$5,$6,'pending',0,now())`, id, tenantID, runID, eventType, url, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FetchDueCallbacks claims nothing; a single worker per process is assumed.
func (p *Postgres) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, run_id::text, event_type, url, payload, status, attempts
        FROM callback_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []CallbackDelivery{}
	for rows.Next() {
		var d CallbackDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RunID, &d.EventType, &d.URL, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
