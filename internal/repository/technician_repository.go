package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// TechnicianRepository handles CRUD for Technician rows.
type TechnicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository creates a new repository.
func NewTechnicianRepository(pool *pgxpool.Pool) *TechnicianRepository {
	return &TechnicianRepository{pool: pool}
}

// Create inserts a new technician.
func (r *TechnicianRepository) Create(ctx context.Context, t *model.Technician) (*model.Technician, error) {
	query := `
		INSERT INTO technicians (
			display_name, address_line, city, state, zip,
			transport_mode, is_active, availability_status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'available')
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		t.DisplayName, t.AddressLine, t.City, t.State, t.Zip,
		t.TransportMode, t.IsActive,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create technician: %w", err)
	}
	t.AvailabilityStatus = model.Available
	return t, nil
}

// GetByID fetches a technician, including geocode if present.
func (r *TechnicianRepository) GetByID(ctx context.Context, id int64) (*model.Technician, error) {
	query := `
		SELECT id, display_name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       transport_mode, is_active, availability_status, created_at, updated_at
		FROM technicians WHERE id = $1
	`
	return scanTechnician(r.pool.QueryRow(ctx, query, id))
}

// ListAvailableWithCoordsAndZip returns available, active technicians that
// have a geocode and a non-empty zip, per runSimulation's candidate pool
// (§4.5).
func (r *TechnicianRepository) ListAvailableWithCoordsAndZip(ctx context.Context) ([]*model.Technician, error) {
	query := `
		SELECT id, display_name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       transport_mode, is_active, availability_status, created_at, updated_at
		FROM technicians
		WHERE is_active = true AND availability_status = 'available'
		  AND geocode_lat IS NOT NULL AND zip <> ''
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list available technicians: %w", err)
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

// ListAll returns every technician, ordered by id.
func (r *TechnicianRepository) ListAll(ctx context.Context) ([]*model.Technician, error) {
	query := `
		SELECT id, display_name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       transport_mode, is_active, availability_status, created_at, updated_at
		FROM technicians
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list technicians: %w", err)
	}
	defer rows.Close()
	return scanTechnicians(rows)
}

// UpdateGeocode persists a (re)geocoded coordinate.
func (r *TechnicianRepository) UpdateGeocode(ctx context.Context, id int64, g *model.Geocode) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE technicians SET
			geocode_lat = $2, geocode_lng = $3, geocode_precision = $4,
			geocode_confidence = $5, geocode_source = $6, geocode_address_used = $7,
			geocode_updated_at = $8, geocode_needs_verification = $9, updated_at = now()
		WHERE id = $1
	`, id, g.Lat, g.Lng, g.Precision, g.Confidence, g.Source, g.AddressUsed, g.UpdatedAt, g.NeedsVerification)
	if err != nil {
		return fmt.Errorf("update technician %d geocode: %w", id, err)
	}
	return nil
}

// SetAvailability flips availabilityStatus inside the caller's transaction
// tx. The Simulation state machine's transactions (C7) write this column
// with their own SQL and do not call it.
func (r *TechnicianRepository) SetAvailability(ctx context.Context, tx pgx.Tx, id int64, status model.AvailabilityStatus) error {
	_, err := tx.Exec(ctx, `
		UPDATE technicians SET availability_status = $2, updated_at = now()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("set technician %d availability: %w", id, err)
	}
	return nil
}

func scanTechnician(row rowScanner) (*model.Technician, error) {
	t := &model.Technician{Geocode: &model.Geocode{}}
	var lat, lng, conf *float64
	var precision, source, addrUsed *string
	var needsVerif *bool

	err := row.Scan(
		&t.ID, &t.DisplayName, &t.AddressLine, &t.City, &t.State, &t.Zip,
		&lat, &lng, &precision, &conf, &source, &addrUsed, &t.Geocode.UpdatedAt, &needsVerif,
		&t.TransportMode, &t.IsActive, &t.AvailabilityStatus, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan technician: %w", err)
	}
	if lat == nil || lng == nil {
		t.Geocode = nil
	} else {
		t.Geocode.Lat = *lat
		t.Geocode.Lng = *lng
		if precision != nil {
			t.Geocode.Precision = model.GeocodePrecision(*precision)
		}
		if conf != nil {
			t.Geocode.Confidence = *conf
		}
		if source != nil {
			t.Geocode.Source = model.GeocodeSource(*source)
		}
		if addrUsed != nil {
			t.Geocode.AddressUsed = *addrUsed
		}
		if needsVerif != nil {
			t.Geocode.NeedsVerification = *needsVerif
		}
	}
	return t, nil
}

func scanTechnicians(rows pgx.Rows) ([]*model.Technician, error) {
	var out []*model.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
