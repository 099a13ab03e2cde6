package geocode

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// cacheKey returns the SHA-256 hex of the normalized canonical address,
// exactly the scheme used in sells-group-research-cli/pkg/geocode/cache.go.
func cacheKey(canonical string) string {
	normalized := strings.ToLower(strings.TrimSpace(canonical))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("%x", h)
}

type cacheRow struct {
	Lat         float64
	Lng         float64
	Precision   model.GeocodePrecision
	Confidence  float64
	Source      model.GeocodeSource
	AddressUsed string
	CachedAt    time.Time
}

func checkCache(ctx context.Context, pool *pgxpool.Pool, key string, ttlDays int) (*cacheRow, error) {
	query := `SELECT lat, lng, precision, confidence, source, address_used, cached_at FROM geocode_cache WHERE address_hash = $1`
	if ttlDays > 0 {
		query += fmt.Sprintf(" AND cached_at > now() - interval '%d days'", ttlDays)
	}

	row := &cacheRow{}
	err := pool.QueryRow(ctx, query, key).Scan(
		&row.Lat, &row.Lng, &row.Precision, &row.Confidence, &row.Source, &row.AddressUsed, &row.CachedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("geocode cache lookup: %w", err)
	}
	return row, nil
}

func storeCache(ctx context.Context, pool *pgxpool.Pool, key string, g *model.Geocode) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO geocode_cache (address_hash, lat, lng, precision, confidence, source, address_used, cached_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (address_hash) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			precision = EXCLUDED.precision,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source,
			address_used = EXCLUDED.address_used,
			cached_at = now()
	`, key, g.Lat, g.Lng, g.Precision, g.Confidence, g.Source, g.AddressUsed)
	if err != nil {
		return fmt.Errorf("geocode cache store: %w", err)
	}
	return nil
}
