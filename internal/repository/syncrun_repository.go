package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// SyncRunRepository persists CRM Sync (C8) run records.
type SyncRunRepository struct {
	pool *pgxpool.Pool
}

// NewSyncRunRepository creates a new repository.
func NewSyncRunRepository(pool *pgxpool.Pool) *SyncRunRepository {
	return &SyncRunRepository{pool: pool}
}

// Start opens a new sync run with status "running".
func (r *SyncRunRepository) Start(ctx context.Context) (*model.SyncRun, error) {
	run := &model.SyncRun{Status: "running"}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO client_sync_runs (status, started_at) VALUES ('running', now())
		RETURNING id, started_at
	`).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("start sync run: %w", err)
	}
	return run, nil
}

// Finish closes a sync run with its final counters and status.
func (r *SyncRunRepository) Finish(ctx context.Context, run *model.SyncRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE client_sync_runs SET
			status = $2, upserted = $3, skipped = $4, failed = $5, errors = $6, ended_at = now()
		WHERE id = $1
	`, run.ID, run.Status, run.Upserted, run.Skipped, run.Failed, run.Errors)
	if err != nil {
		return fmt.Errorf("finish sync run %d: %w", run.ID, err)
	}
	return nil
}

// Latest returns the most recent sync run.
func (r *SyncRunRepository) Latest(ctx context.Context) (*model.SyncRun, error) {
	run := &model.SyncRun{}
	var errs []string
	err := r.pool.QueryRow(ctx, `
		SELECT id, status, upserted, skipped, failed, errors, started_at, ended_at
		FROM client_sync_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&run.ID, &run.Status, &run.Upserted, &run.Skipped, &run.Failed, &errs, &run.StartedAt, &run.EndedAt)
	if err != nil {
		return nil, fmt.Errorf("latest sync run: %w", err)
	}
	run.Errors = errs
	return run, nil
}
