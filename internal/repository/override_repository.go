package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// OverrideRepository handles CRUD for the Override Store (C4).
type OverrideRepository struct {
	pool *pgxpool.Pool
}

// NewOverrideRepository creates a new repository.
func NewOverrideRepository(pool *pgxpool.Pool) *OverrideRepository {
	return &OverrideRepository{pool: pool}
}

// Upsert inserts or updates the override for (clientId, technicianId),
// applying LastWriteWins per SPEC_FULL.md §5's conflict-policy decision.
func (r *OverrideRepository) Upsert(ctx context.Context, o *model.Override) (*model.Override, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO match_overrides (client_id, technician_id, type, effective_from, effective_to)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (client_id, technician_id) DO UPDATE SET
			type = EXCLUDED.type,
			effective_from = EXCLUDED.effective_from,
			effective_to = EXCLUDED.effective_to
		RETURNING id, created_at
	`, o.ClientID, o.TechnicianID, o.Type, o.EffectiveFrom, o.EffectiveTo,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert override (%d,%d): %w", o.ClientID, o.TechnicianID, err)
	}
	return o, nil
}

// ListCurrent returns every override whose effective window contains asOf.
func (r *OverrideRepository) ListCurrent(ctx context.Context, asOf time.Time) ([]*model.Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, technician_id, type, effective_from, effective_to, created_at
		FROM match_overrides
		WHERE (effective_from IS NULL OR effective_from <= $1)
		  AND (effective_to IS NULL OR effective_to >= $1)
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list current overrides: %w", err)
	}
	defer rows.Close()

	var out []*model.Override
	for rows.Next() {
		o := &model.Override{}
		if err := rows.Scan(&o.ID, &o.ClientID, &o.TechnicianID, &o.Type, &o.EffectiveFrom, &o.EffectiveTo, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// GetByID fetches an override by id.
func (r *OverrideRepository) GetByID(ctx context.Context, id int64) (*model.Override, error) {
	o := &model.Override{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, technician_id, type, effective_from, effective_to, created_at
		FROM match_overrides WHERE id = $1
	`, id).Scan(&o.ID, &o.ClientID, &o.TechnicianID, &o.Type, &o.EffectiveFrom, &o.EffectiveTo, &o.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get override %d: %w", id, err)
	}
	return o, nil
}

// GetByPair fetches an override by (clientId, technicianId).
func (r *OverrideRepository) GetByPair(ctx context.Context, clientID, technicianID int64) (*model.Override, error) {
	o := &model.Override{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, technician_id, type, effective_from, effective_to, created_at
		FROM match_overrides WHERE client_id = $1 AND technician_id = $2
	`, clientID, technicianID).Scan(&o.ID, &o.ClientID, &o.TechnicianID, &o.Type, &o.EffectiveFrom, &o.EffectiveTo, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get override (%d,%d): %w", clientID, technicianID, err)
	}
	return o, nil
}

// DeleteByID removes an override by id.
func (r *OverrideRepository) DeleteByID(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM match_overrides WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete override %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteByPair removes an override by (clientId, technicianId).
func (r *OverrideRepository) DeleteByPair(ctx context.Context, clientID, technicianID int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM match_overrides WHERE client_id = $1 AND technician_id = $2`, clientID, technicianID)
	if err != nil {
		return fmt.Errorf("delete override (%d,%d): %w", clientID, technicianID, err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
