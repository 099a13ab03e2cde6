package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shiva/geomatch/internal/model"
)

// DefaultApprovalTimeout bounds the approve/reopen transaction round-trip,
// mirroring the teacher's DefaultBookingTimeout.
const DefaultApprovalTimeout = 5 * time.Second

// SimulationRepository implements the Approval State Machine's (C7)
// atomic transitions: proposal → pairing, reopen. Grounded directly on the
// teacher's BookingRepository.BookRide/CancelRide transactional shape —
// BeginTx, sequential SELECT ... FOR UPDATE locks, validate, UPDATE,
// Commit.
type SimulationRepository struct {
	pool *pgxpool.Pool
}

// NewSimulationRepository creates a new repository.
func NewSimulationRepository(pool *pgxpool.Pool) *SimulationRepository {
	return &SimulationRepository{pool: pool}
}

// ErrProposalNotProposed is returned when a proposal is not in the
// `proposed` or `deferred` state required by approve/reject.
var ErrProposalNotProposed = fmt.Errorf("proposal is not in proposed/deferred state")

// ErrAlreadyActivePairing is returned when the client or technician
// already has an active pairing, violating the one-active-pairing
// invariant (§3, §8).
var ErrAlreadyActivePairing = fmt.Errorf("client or technician already has an active pairing")

// ApproveProposal atomically transitions a proposal to approved, inserts
// an active Pairing, and locks the Technician + pairs the Client. All
// within one transaction (§4.5 atomicity requirement).
func (r *SimulationRepository) ApproveProposal(ctx context.Context, proposalID int64) (*model.Pairing, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultApprovalTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("approve: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Step 1: lock the proposal row.
	var status model.ProposalStatus
	var clientID, technicianID int64
	err = tx.QueryRow(ctx, `
		SELECT status, client_id, technician_id FROM match_proposals WHERE id = $1 FOR UPDATE
	`, proposalID).Scan(&status, &clientID, &technicianID)
	if err != nil {
		return nil, fmt.Errorf("approve: lock proposal %d: %w", proposalID, err)
	}
	if status != model.Proposed && status != model.Deferred {
		return nil, ErrProposalNotProposed
	}

	// Step 2: lock client + technician rows to serialize concurrent approvals.
	var clientPairingStatus model.PairingStatus
	if err := tx.QueryRow(ctx, `SELECT pairing_status FROM clients WHERE id = $1 FOR UPDATE`, clientID).Scan(&clientPairingStatus); err != nil {
		return nil, fmt.Errorf("approve: lock client %d: %w", clientID, err)
	}
	if clientPairingStatus == model.Paired {
		return nil, ErrAlreadyActivePairing
	}

	var techAvailability model.AvailabilityStatus
	if err := tx.QueryRow(ctx, `SELECT availability_status FROM technicians WHERE id = $1 FOR UPDATE`, technicianID).Scan(&techAvailability); err != nil {
		return nil, fmt.Errorf("approve: lock technician %d: %w", technicianID, err)
	}
	if techAvailability == model.Locked {
		return nil, ErrAlreadyActivePairing
	}

	// Step 3: transition the proposal.
	if _, err := tx.Exec(ctx, `UPDATE match_proposals SET status = 'approved' WHERE id = $1`, proposalID); err != nil {
		return nil, fmt.Errorf("approve: update proposal %d: %w", proposalID, err)
	}

	// Step 4: create the pairing.
	pairing := &model.Pairing{ClientID: clientID, TechnicianID: technicianID, ProposalID: proposalID, Status: model.PairingActive}
	err = tx.QueryRow(ctx, `
		INSERT INTO pairings (client_id, technician_id, proposal_id, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id, created_at
	`, clientID, technicianID, proposalID).Scan(&pairing.ID, &pairing.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("approve: insert pairing: %w", err)
	}

	// Step 5: flip derived-view fields on client + technician.
	if _, err := tx.Exec(ctx, `
		UPDATE clients SET pairing_status = 'paired', paired_technician_id = $2, updated_at = now() WHERE id = $1
	`, clientID, technicianID); err != nil {
		return nil, fmt.Errorf("approve: pair client %d: %w", clientID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE technicians SET availability_status = 'locked', updated_at = now() WHERE id = $1
	`, technicianID); err != nil {
		return nil, fmt.Errorf("approve: lock technician %d: %w", technicianID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("approve: commit: %w", err)
	}
	return pairing, nil
}

// RejectProposal transitions a proposal to rejected. No side effects on
// Client/Technician.
func (r *SimulationRepository) RejectProposal(ctx context.Context, proposalID int64) error {
	return r.transitionProposal(ctx, proposalID, model.Rejected)
}

// DeferProposal transitions a proposal to deferred, which is ignored by
// future runSimulation expirations (§4.5).
func (r *SimulationRepository) DeferProposal(ctx context.Context, proposalID int64) error {
	return r.transitionProposal(ctx, proposalID, model.Deferred)
}

func (r *SimulationRepository) transitionProposal(ctx context.Context, proposalID int64, newStatus model.ProposalStatus) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("transition proposal: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.ProposalStatus
	if err := tx.QueryRow(ctx, `SELECT status FROM match_proposals WHERE id = $1 FOR UPDATE`, proposalID).Scan(&status); err != nil {
		return fmt.Errorf("transition proposal %d: lock: %w", proposalID, err)
	}
	if status != model.Proposed && !(status == model.Deferred && newStatus == model.Rejected) {
		return ErrProposalNotProposed
	}

	if _, err := tx.Exec(ctx, `UPDATE match_proposals SET status = $2 WHERE id = $1`, proposalID, newStatus); err != nil {
		return fmt.Errorf("transition proposal %d: update: %w", proposalID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transition proposal %d: commit: %w", proposalID, err)
	}
	return nil
}

// ErrTechnicianNotLocked is returned when reopenTechnician is called on a
// technician with no active pairing.
var ErrTechnicianNotLocked = fmt.Errorf("technician has no active pairing")

// ReopenTechnician deactivates all of a technician's active pairings,
// unpairs their clients, and marks the technician available again — all
// in one transaction (§4.5 atomicity requirement).
func (r *SimulationRepository) ReopenTechnician(ctx context.Context, technicianID int64) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultApprovalTimeout)
	defer cancel()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("reopen: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var availability model.AvailabilityStatus
	if err := tx.QueryRow(ctx, `SELECT availability_status FROM technicians WHERE id = $1 FOR UPDATE`, technicianID).Scan(&availability); err != nil {
		return fmt.Errorf("reopen: lock technician %d: %w", technicianID, err)
	}
	if availability != model.Locked {
		return ErrTechnicianNotLocked
	}

	rows, err := tx.Query(ctx, `SELECT id, client_id FROM pairings WHERE technician_id = $1 AND status = 'active' FOR UPDATE`, technicianID)
	if err != nil {
		return fmt.Errorf("reopen: lock pairings for technician %d: %w", technicianID, err)
	}
	type pair struct {
		id       int64
		clientID int64
	}
	var pairs []pair
	for rows.Next() {
		var p pair
		if err := rows.Scan(&p.id, &p.clientID); err != nil {
			rows.Close()
			return fmt.Errorf("reopen: scan pairing: %w", err)
		}
		pairs = append(pairs, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reopen: iterate pairings: %w", err)
	}
	if len(pairs) == 0 {
		return ErrTechnicianNotLocked
	}

	for _, p := range pairs {
		if _, err := tx.Exec(ctx, `UPDATE pairings SET status = 'inactive', ended_at = now() WHERE id = $1`, p.id); err != nil {
			return fmt.Errorf("reopen: deactivate pairing %d: %w", p.id, err)
		}
		if _, err := tx.Exec(ctx, `
			UPDATE clients SET pairing_status = 'unpaired', paired_technician_id = NULL, updated_at = now() WHERE id = $1
		`, p.clientID); err != nil {
			return fmt.Errorf("reopen: unpair client %d: %w", p.clientID, err)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE technicians SET availability_status = 'available', updated_at = now() WHERE id = $1`, technicianID); err != nil {
		return fmt.Errorf("reopen: free technician %d: %w", technicianID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("reopen: commit: %w", err)
	}
	return nil
}

// ExpirePreviousProposed transitions every `proposed` proposal for a
// client to `expired`, leaving `deferred` alone — called at the start of
// runSimulation's per-client loop (§4.5).
func (r *SimulationRepository) ExpirePreviousProposed(ctx context.Context, clientID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE match_proposals SET status = 'expired' WHERE client_id = $1 AND status = 'proposed'
	`, clientID)
	if err != nil {
		return fmt.Errorf("expire proposals for client %d: %w", clientID, err)
	}
	return nil
}

// CreateProposal inserts a new proposal in the proposed state.
func (r *SimulationRepository) CreateProposal(ctx context.Context, p *model.MatchProposal) (*model.MatchProposal, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO match_proposals (client_id, technician_id, travel_time_minutes, distance_meters, status, simulation_run_id)
		VALUES ($1, $2, $3, $4, 'proposed', $5)
		RETURNING id, created_at
	`, p.ClientID, p.TechnicianID, p.TravelTimeMinutes, p.DistanceMeters, p.SimulationRunID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}
	p.Status = model.Proposed
	return p, nil
}

// GetProposal fetches a proposal by id.
func (r *SimulationRepository) GetProposal(ctx context.Context, id int64) (*model.MatchProposal, error) {
	p := &model.MatchProposal{}
	err := r.pool.QueryRow(ctx, `
		SELECT id, client_id, technician_id, travel_time_minutes, distance_meters, status, simulation_run_id, created_at
		FROM match_proposals WHERE id = $1
	`, id).Scan(&p.ID, &p.ClientID, &p.TechnicianID, &p.TravelTimeMinutes, &p.DistanceMeters, &p.Status, &p.SimulationRunID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get proposal %d: %w", id, err)
	}
	return p, nil
}

// ListByStatus returns proposals in the given status.
func (r *SimulationRepository) ListByStatus(ctx context.Context, status model.ProposalStatus) ([]*model.MatchProposal, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, client_id, technician_id, travel_time_minutes, distance_meters, status, simulation_run_id, created_at
		FROM match_proposals WHERE status = $1 ORDER BY created_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list proposals by status %s: %w", status, err)
	}
	defer rows.Close()

	var out []*model.MatchProposal
	for rows.Next() {
		p := &model.MatchProposal{}
		if err := rows.Scan(&p.ID, &p.ClientID, &p.TechnicianID, &p.TravelTimeMinutes, &p.DistanceMeters, &p.Status, &p.SimulationRunID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
