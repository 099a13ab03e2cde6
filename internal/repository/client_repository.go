// Package repository holds the pgx-backed persistence layer: thin,
// SQL-centric data access with no business logic, following the shape of
// the teacher's repository package (one struct per aggregate, pgxpool.Pool
// injected, FOR UPDATE locking for anything touched by the state machine).
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// ClientRepository handles CRUD for Client rows.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository creates a new repository.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// Create inserts a new unpaired client.
func (r *ClientRepository) Create(ctx context.Context, c *model.Client) (*model.Client, error) {
	query := `
		INSERT INTO clients (
			name, address_line, city, state, zip,
			pairing_status, crm_id, coords_stale, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		c.Name, c.AddressLine, c.City, c.State, c.Zip,
		c.PairingStatus, c.CRMID, c.CoordsStale, c.Notes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return c, nil
}

// GetByID fetches a client, including its geocode if present.
func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	query := `
		SELECT id, name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       pairing_status, paired_technician_id, crm_id, coords_stale, notes,
		       created_at, updated_at
		FROM clients WHERE id = $1
	`
	return scanClient(r.pool.QueryRow(ctx, query, id))
}

// ListUnpairedWithCoords returns unpaired clients that have a geocode, for
// runSimulation/runMatching candidate selection (§4.5/§4.3).
func (r *ClientRepository) ListUnpairedWithCoords(ctx context.Context) ([]*model.Client, error) {
	query := `
		SELECT id, name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       pairing_status, paired_technician_id, crm_id, coords_stale, notes,
		       created_at, updated_at
		FROM clients
		WHERE pairing_status = 'unpaired' AND geocode_lat IS NOT NULL
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list unpaired clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

// ListAll returns every client, used by the unmatched-clients report and
// by CRM Sync.
func (r *ClientRepository) ListAll(ctx context.Context) ([]*model.Client, error) {
	query := `
		SELECT id, name, address_line, city, state, zip,
		       geocode_lat, geocode_lng, geocode_precision, geocode_confidence,
		       geocode_source, geocode_address_used, geocode_updated_at, geocode_needs_verification,
		       pairing_status, paired_technician_id, crm_id, coords_stale, notes,
		       created_at, updated_at
		FROM clients
		ORDER BY id ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()
	return scanClients(rows)
}

// UpdateGeocode persists a (re)geocoded coordinate and clears coordsStale.
func (r *ClientRepository) UpdateGeocode(ctx context.Context, id int64, g *model.Geocode) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE clients SET
			geocode_lat = $2, geocode_lng = $3, geocode_precision = $4,
			geocode_confidence = $5, geocode_source = $6, geocode_address_used = $7,
			geocode_updated_at = $8, geocode_needs_verification = $9,
			coords_stale = false, updated_at = now()
		WHERE id = $1
	`, id, g.Lat, g.Lng, g.Precision, g.Confidence, g.Source, g.AddressUsed, g.UpdatedAt, g.NeedsVerification)
	if err != nil {
		return fmt.Errorf("update client %d geocode: %w", id, err)
	}
	return nil
}

// UpsertByCRMID inserts or updates a client identified by its CRM id, used
// by CRM Sync (C8). Returns the row plus whether an insert happened.
func (r *ClientRepository) UpsertByCRMID(ctx context.Context, c *model.Client) (*model.Client, bool, error) {
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO clients (name, address_line, city, state, zip, pairing_status, crm_id, coords_stale, notes)
		VALUES ($1, $2, $3, $4, $5, 'unpaired', $6, $7, $8)
		ON CONFLICT (crm_id) DO UPDATE SET
			name = EXCLUDED.name,
			address_line = EXCLUDED.address_line,
			city = EXCLUDED.city,
			state = EXCLUDED.state,
			zip = EXCLUDED.zip,
			coords_stale = EXCLUDED.coords_stale,
			updated_at = now()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`, c.Name, c.AddressLine, c.City, c.State, c.Zip, c.CRMID, c.CoordsStale, c.Notes,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("upsert client by crm_id %v: %w", c.CRMID, err)
	}
	return c, inserted, nil
}

// SetPairing marks a client paired/unpaired inside the caller's transaction
// tx. The Simulation state machine's transactions (C7) write these columns
// with their own SQL and do not call it.
func (r *ClientRepository) SetPairing(ctx context.Context, tx pgx.Tx, clientID int64, status model.PairingStatus, technicianID *int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE clients SET pairing_status = $2, paired_technician_id = $3, updated_at = now()
		WHERE id = $1
	`, clientID, status, technicianID)
	if err != nil {
		return fmt.Errorf("set client %d pairing: %w", clientID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*model.Client, error) {
	c := &model.Client{Geocode: &model.Geocode{}}
	var lat, lng, conf *float64
	var precision, source, addrUsed *string
	var needsVerif *bool
	var pairedTechID *int64
	var crmID *string

	err := row.Scan(
		&c.ID, &c.Name, &c.AddressLine, &c.City, &c.State, &c.Zip,
		&lat, &lng, &precision, &conf, &source, &addrUsed, &c.Geocode.UpdatedAt, &needsVerif,
		&c.PairingStatus, &pairedTechID, &crmID, &c.CoordsStale, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan client: %w", err)
	}
	c.PairedTechnicianID = pairedTechID
	c.CRMID = crmID
	if lat == nil || lng == nil {
		c.Geocode = nil
	} else {
		c.Geocode.Lat = *lat
		c.Geocode.Lng = *lng
		if precision != nil {
			c.Geocode.Precision = model.GeocodePrecision(*precision)
		}
		if conf != nil {
			c.Geocode.Confidence = *conf
		}
		if source != nil {
			c.Geocode.Source = model.GeocodeSource(*source)
		}
		if addrUsed != nil {
			c.Geocode.AddressUsed = *addrUsed
		}
		if needsVerif != nil {
			c.Geocode.NeedsVerification = *needsVerif
		}
	}
	return c, nil
}

func scanClients(rows pgx.Rows) ([]*model.Client, error) {
	var out []*model.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
