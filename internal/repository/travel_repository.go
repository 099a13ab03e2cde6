package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// TravelTimeRepository is the Postgres slow path for the Travel-Time
// Cache (C3), grounded on the teacher's PricingRepository.GetDemandSupply
// cache-then-store shape (internal/repository/pricing_repository.go).
type TravelTimeRepository struct {
	pool *pgxpool.Pool
}

// NewTravelTimeRepository creates a new repository.
func NewTravelTimeRepository(pool *pgxpool.Pool) *TravelTimeRepository {
	return &TravelTimeRepository{pool: pool}
}

// Get looks up an unexpired entry for the given key, trying the active
// bucket then each legacy bucket name in order (§4.2 backward-compat
// read).
func (r *TravelTimeRepository) Get(ctx context.Context, originHash, destHash string, originType, destType model.EntityType, mode model.TravelMode, buckets []string) (*model.TravelTimeCacheEntry, error) {
	for _, bucket := range buckets {
		e, err := r.getExact(ctx, originHash, destHash, originType, destType, mode, bucket)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return e, nil
		}
	}
	return nil, nil
}

func (r *TravelTimeRepository) getExact(ctx context.Context, originHash, destHash string, originType, destType model.EntityType, mode model.TravelMode, bucket string) (*model.TravelTimeCacheEntry, error) {
	e := &model.TravelTimeCacheEntry{}
	var dist *float64
	err := r.pool.QueryRow(ctx, `
		SELECT origin_hash, dest_hash, origin_type, dest_type, mode, bucket,
		       duration_sec_avg, duration_sec_median, duration_sec_pessimistic,
		       distance_meters, computed_at, expires_at
		FROM travel_time_cache
		WHERE origin_hash = $1 AND dest_hash = $2 AND origin_type = $3
		  AND dest_type = $4 AND mode = $5 AND bucket = $6 AND expires_at > now()
	`, originHash, destHash, originType, destType, mode, bucket).Scan(
		&e.OriginHash, &e.DestHash, &e.OriginType, &e.DestType, &e.Mode, &e.Bucket,
		&e.DurationSecAvg, &e.DurationSecMedian, &e.DurationSecPessimistic,
		&dist, &e.ComputedAt, &e.ExpiresAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("travel cache lookup: %w", err)
	}
	e.DistanceMeters = dist
	return e, nil
}

// Upsert writes a freshly computed entry, idempotent last-writer-wins per
// the composite unique key (§5 shared-resource policy).
func (r *TravelTimeRepository) Upsert(ctx context.Context, e *model.TravelTimeCacheEntry, ttl time.Duration) error {
	e.ComputedAt = time.Now()
	e.ExpiresAt = e.ComputedAt.Add(ttl)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO travel_time_cache (
			origin_hash, dest_hash, origin_type, dest_type, mode, bucket,
			duration_sec_avg, duration_sec_median, duration_sec_pessimistic,
			distance_meters, computed_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (origin_hash, dest_hash, origin_type, dest_type, mode, bucket) DO UPDATE SET
			duration_sec_avg = EXCLUDED.duration_sec_avg,
			duration_sec_median = EXCLUDED.duration_sec_median,
			duration_sec_pessimistic = EXCLUDED.duration_sec_pessimistic,
			distance_meters = EXCLUDED.distance_meters,
			computed_at = EXCLUDED.computed_at,
			expires_at = EXCLUDED.expires_at
	`, e.OriginHash, e.DestHash, e.OriginType, e.DestType, e.Mode, e.Bucket,
		e.DurationSecAvg, e.DurationSecMedian, e.DurationSecPessimistic,
		e.DistanceMeters, e.ComputedAt, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("travel cache upsert: %w", err)
	}
	return nil
}

// InvalidateByEntity deletes every row where the given (type, hash)
// appears as origin or destination (§4.2 invalidation).
func (r *TravelTimeRepository) InvalidateByEntity(ctx context.Context, entityType model.EntityType, hash string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM travel_time_cache
		WHERE (origin_type = $1 AND origin_hash = $2) OR (dest_type = $1 AND dest_hash = $2)
	`, entityType, hash)
	if err != nil {
		return fmt.Errorf("invalidate travel cache for %s %s: %w", entityType, hash, err)
	}
	return nil
}

// InvalidateByHash invalidates by coordinate hash alone, for bulk edits
// with no entity id (§4.2).
func (r *TravelTimeRepository) InvalidateByHash(ctx context.Context, hash string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM travel_time_cache WHERE origin_hash = $1 OR dest_hash = $1
	`, hash)
	if err != nil {
		return fmt.Errorf("invalidate travel cache for hash %s: %w", hash, err)
	}
	return nil
}
