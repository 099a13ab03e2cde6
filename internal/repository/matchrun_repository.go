package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// MatchRunRepository persists the Match Run Ledger (C9).
type MatchRunRepository struct {
	pool *pgxpool.Pool
}

// NewMatchRunRepository creates a new repository.
func NewMatchRunRepository(pool *pgxpool.Pool) *MatchRunRepository {
	return &MatchRunRepository{pool: pool}
}

// Start inserts a new in-progress run.
func (r *MatchRunRepository) Start(ctx context.Context) (*model.MatchRun, error) {
	run := &model.MatchRun{}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO match_runs (started_at) VALUES (now()) RETURNING id, started_at
	`).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("start match run: %w", err)
	}
	return run, nil
}

// Finish writes the final counters for a run.
func (r *MatchRunRepository) Finish(ctx context.Context, run *model.MatchRun) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE match_runs SET
			ended_at = now(), input_client_count = $2, input_tech_count = $3,
			matched_count = $4, locked_count = $5, auto_count = $6, blocked_count = $7,
			standby_count = $8, no_location_count = $9, needs_review_count = $10,
			google_api_calls = $11, cache_hits = $12, cache_hit_rate = $13, metadata = $14
		WHERE id = $1
	`, run.ID, run.InputClientCount, run.InputTechCount,
		run.MatchedCount, run.LockedCount, run.AutoCount, run.BlockedCount,
		run.StandbyCount, run.NoLocationCount, run.NeedsReviewCount,
		run.GoogleAPICalls, run.CacheHits, run.CacheHitRate, run.Metadata,
	)
	if err != nil {
		return fmt.Errorf("finish match run %d: %w", run.ID, err)
	}
	return nil
}

// Latest returns the most recently started run, or an error wrapping
// pgx.ErrNoRows if none exist.
func (r *MatchRunRepository) Latest(ctx context.Context) (*model.MatchRun, error) {
	run := &model.MatchRun{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, started_at, ended_at, input_client_count, input_tech_count,
		       matched_count, locked_count, auto_count, blocked_count,
		       standby_count, no_location_count, needs_review_count,
		       google_api_calls, cache_hits, cache_hit_rate, metadata
		FROM match_runs ORDER BY started_at DESC LIMIT 1
	`).Scan(&run.ID, &run.StartedAt, &run.EndedAt, &run.InputClientCount, &run.InputTechCount,
		&run.MatchedCount, &run.LockedCount, &run.AutoCount, &run.BlockedCount,
		&run.StandbyCount, &run.NoLocationCount, &run.NeedsReviewCount,
		&run.GoogleAPICalls, &run.CacheHits, &run.CacheHitRate, &run.Metadata,
	)
	if err != nil {
		return nil, fmt.Errorf("latest match run: %w", err)
	}
	return run, nil
}
