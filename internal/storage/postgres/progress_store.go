// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/progress-aggregator/internal/store"
)

// Schema creates the tables used by ProgressStore.
const Schema = `
CREATE TABLE IF NOT EXISTS tracker_runs (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL,
	position    INTEGER NOT NULL DEFAULT 0,
	message     TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);
CREATE TABLE IF NOT EXISTS tracker_contributors (
	tracker_id     UUID NOT NULL,
	contributor_id TEXT NOT NULL,
	status         TEXT NOT NULL,
	updates        BIGINT NOT NULL DEFAULT 0,
	started_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tracker_id, contributor_id)
);`

var _ store.ProgressRepository = (*ProgressStore)(nil)

// pool is the subset of *pgxpool.Pool used by ProgressStore.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	pool pool
}

// NewProgressStore connects a pgx pool using cfg.
func NewProgressStore(ctx context.Context, cfg Config) (*ProgressStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProgressStore{pool: p}, nil
}

// NewProgressStoreWithPool wraps an existing pool; used by tests.
func NewProgressStoreWithPool(p pool) *ProgressStore {
	return &ProgressStore{pool: p}
}

// Close closes the underlying connection pool.
func (s *ProgressStore) Close() {
	s.pool.Close()
}

// Ping verifies that the database is reachable.
func (s *ProgressStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the tables if they do not exist.
func (s *ProgressStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate progress schema: %w", err)
	}
	return nil
}

// UpsertTrackerStart inserts the tracker or restarts it at position zero.
func (s *ProgressStore) UpsertTrackerStart(ctx context.Context, run store.TrackerRun) error {
	query := `
		INSERT INTO tracker_runs (id, name, total, position, message, status, started_at, updated_at)
		VALUES ($1, $2, $3, 0, '', $4, $5, $5)
		ON CONFLICT (id) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), tracker_runs.name),
			total = EXCLUDED.total,
			position = 0,
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at,
			finished_at = NULL;
	`
	_, err := s.pool.Exec(ctx, query, run.ID, run.Name, run.Total, string(store.TrackerRunning), run.StartedAt)
	if err != nil {
		return fmt.Errorf("upsert tracker start: %w", err)
	}
	return nil
}

// UpdateTrackerPosition records the latest position. Positions never move
// backward and a finished tracker keeps its status.
func (s *ProgressStore) UpdateTrackerPosition(
	ctx context.Context,
	trackerID uuid.UUID,
	position int,
	message string,
	status store.TrackerStatus,
	at time.Time,
) error {
	query := `
		UPDATE tracker_runs
		SET position = GREATEST(position, $1),
			message = COALESCE(NULLIF($2, ''), message),
			status = CASE WHEN status = 'finished' THEN status ELSE $3 END,
			updated_at = $4
		WHERE id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, position, message, string(status), at, trackerID)
	if err != nil {
		return fmt.Errorf("update tracker position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// RenameTracker updates the display name.
func (s *ProgressStore) RenameTracker(ctx context.Context, trackerID uuid.UUID, name string, at time.Time) error {
	query := `UPDATE tracker_runs SET name = $1, updated_at = $2 WHERE id = $3;`
	tag, err := s.pool.Exec(ctx, query, name, at, trackerID)
	if err != nil {
		return fmt.Errorf("rename tracker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// CompleteTracker marks the tracker finished.
func (s *ProgressStore) CompleteTracker(ctx context.Context, trackerID uuid.UUID, finishedAt time.Time) error {
	query := `
		UPDATE tracker_runs
		SET status = $1, finished_at = $2, updated_at = $2
		WHERE id = $3;
	`
	tag, err := s.pool.Exec(ctx, query, string(store.TrackerFinished), finishedAt, trackerID)
	if err != nil {
		return fmt.Errorf("complete tracker: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// UpsertContributor creates or updates one contributor row.
func (s *ProgressStore) UpsertContributor(
	ctx context.Context,
	trackerID uuid.UUID,
	contributorID string,
	status store.ContributorStatus,
	deltaUpdates int64,
	at time.Time,
) error {
	query := `
		INSERT INTO tracker_contributors (tracker_id, contributor_id, status, updates, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (tracker_id, contributor_id) DO UPDATE
		SET status = CASE WHEN tracker_contributors.status = 'finished'
				THEN tracker_contributors.status ELSE EXCLUDED.status END,
			updates = tracker_contributors.updates + EXCLUDED.updates,
			updated_at = EXCLUDED.updated_at;
	`
	_, err := s.pool.Exec(ctx, query, trackerID, contributorID, string(status), deltaUpdates, at)
	if err != nil {
		return fmt.Errorf("upsert contributor: %w", err)
	}
	return nil
}

const trackerColumns = `id, name, total, position, message, status, started_at, updated_at, finished_at`

// GetTracker retrieves a single tracker by its ID.
func (s *ProgressStore) GetTracker(ctx context.Context, trackerID uuid.UUID) (store.TrackerRun, error) {
	query := `SELECT ` + trackerColumns + ` FROM tracker_runs WHERE id = $1;`
	run, err := scanTracker(s.pool.QueryRow(ctx, query, trackerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.TrackerRun{}, store.ErrNotFound
		}
		return store.TrackerRun{}, fmt.Errorf("get tracker: %w", err)
	}
	return run, nil
}

// ListTrackers retrieves trackers newest first, with optional status filtering.
func (s *ProgressStore) ListTrackers(
	ctx context.Context,
	status *store.TrackerStatus,
	limit,
	offset int,
) ([]store.TrackerRun, error) {
	query := `
		SELECT ` + trackerColumns + `
		FROM tracker_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	var statusArg any
	if status != nil {
		statusArg = string(*status)
	}
	rows, err := s.pool.Query(ctx, query, statusArg, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	runs := []store.TrackerRun{}
	for rows.Next() {
		run, err := scanTracker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracker row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	return runs, nil
}

// ListContributors retrieves the contributors of one tracker in start order.
func (s *ProgressStore) ListContributors(
	ctx context.Context,
	trackerID uuid.UUID,
	limit,
	offset int,
) ([]store.ContributorRun, error) {
	query := `
		SELECT tracker_id, contributor_id, status, updates, started_at, updated_at
		FROM tracker_contributors
		WHERE tracker_id = $1
		ORDER BY started_at, contributor_id
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, trackerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	defer rows.Close()

	out := []store.ContributorRun{}
	for rows.Next() {
		var (
			row    store.ContributorRun
			status string
		)
		if err := rows.Scan(
			&row.TrackerID,
			&row.ContributorID,
			&status,
			&row.Updates,
			&row.StartedAt,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan contributor row: %w", err)
		}
		row.Status = store.ContributorStatus(status)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list contributors: %w", err)
	}
	return out, nil
}

func scanTracker(row pgx.Row) (store.TrackerRun, error) {
	var (
		run    store.TrackerRun
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Name,
		&run.Total,
		&run.Position,
		&run.Message,
		&status,
		&run.StartedAt,
		&run.UpdatedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return store.TrackerRun{}, err
	}
	run.Status = store.TrackerStatus(status)
	return run, nil
}
