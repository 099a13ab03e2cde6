package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// MetaRepository reads/writes the scheduling_meta singleton row used for
// startup validation (§6.4) and scheduler bookkeeping.
type MetaRepository struct {
	pool *pgxpool.Pool
}

// NewMetaRepository creates a new repository.
func NewMetaRepository(pool *pgxpool.Pool) *MetaRepository {
	return &MetaRepository{pool: pool}
}

// Get fetches the singleton row (id=1).
func (r *MetaRepository) Get(ctx context.Context) (*model.SchedulingMeta, error) {
	m := &model.SchedulingMeta{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, project_name, last_matching_run_at, last_matching_summary
		FROM scheduling_meta WHERE id = 1
	`).Scan(&m.ID, &m.ProjectName, &m.LastMatchingRunAt, &m.LastMatchingSummary)
	if err != nil {
		return nil, fmt.Errorf("get scheduling_meta: %w", err)
	}
	return m, nil
}

// RecordMatchingRun updates the last-run bookkeeping after a match run or
// scheduler tick completes.
func (r *MetaRepository) RecordMatchingRun(ctx context.Context, summary string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduling_meta SET last_matching_run_at = now(), last_matching_summary = $1 WHERE id = 1
	`, summary)
	if err != nil {
		return fmt.Errorf("record matching run in scheduling_meta: %w", err)
	}
	return nil
}
