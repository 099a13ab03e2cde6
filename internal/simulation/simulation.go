// Package simulation implements the Simulation / Approval State Machine
// (C7): single-client proposal generation and the propose → approve /
// reject / defer → reopen lifecycle. Grounded directly on the teacher's
// internal/service/booking.go and cancel.go: a thin service wrapping a
// transactional repository and translating sentinel repo errors into a
// caller-facing error taxonomy via classifyError. The service holds no
// cache and invalidates none.
package simulation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/geocode"
	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/normalize"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/pkg/geo"
)

// MaxTravelMinutes bounds simulation proposals the same way the batch
// matcher is bounded (§4.5: "the same travel budget as runMatching").
const MaxTravelMinutes = 30.0

// Reason distinguishes the Conflict/NotFound error cases the REST layer
// needs to report distinct status/body detail for (§7).
type Reason string

const (
	ReasonProposalNotProposed Reason = "proposal-not-proposed"
	ReasonClientAlreadyPaired Reason = "client-already-paired"
	ReasonTechnicianLocked    Reason = "technician-locked"
	ReasonTechnicianNotLocked Reason = "technician-not-locked"
)

// ConflictError wraps a classified state-machine conflict with its reason
// code, so handlers can map it to the right HTTP status (§7).
type ConflictError struct {
	Reason Reason
	Err    error
}

func (e *ConflictError) Error() string { return fmt.Sprintf("%s: %v", e.Reason, e.Err) }
func (e *ConflictError) Unwrap() error { return e.Err }

// classifyError translates SimulationRepository sentinel errors into a
// ConflictError carrying a distinguishing reason, mirroring the teacher's
// booking.go classifyError switch over repository sentinels.
// ErrAlreadyActivePairing covers both an already-paired client and an
// already-locked technician and is reported as ReasonClientAlreadyPaired;
// ReasonTechnicianLocked is not produced.
func classifyError(err error) error {
	switch {
	case errors.Is(err, repository.ErrProposalNotProposed):
		return &ConflictError{Reason: ReasonProposalNotProposed, Err: err}
	case errors.Is(err, repository.ErrAlreadyActivePairing):
		return &ConflictError{Reason: ReasonClientAlreadyPaired, Err: err}
	case errors.Is(err, repository.ErrTechnicianNotLocked):
		return &ConflictError{Reason: ReasonTechnicianNotLocked, Err: err}
	default:
		return err
	}
}

// Service is the Simulation / Approval State Machine (C7).
type Service struct {
	clientRepo *repository.ClientRepository
	techRepo   *repository.TechnicianRepository
	simRepo    *repository.SimulationRepository
	geocoder   *geocode.Client
	logger     *zap.Logger
}

// New constructs a Service.
func New(clientRepo *repository.ClientRepository, techRepo *repository.TechnicianRepository, simRepo *repository.SimulationRepository, geocoder *geocode.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{clientRepo: clientRepo, techRepo: techRepo, simRepo: simRepo, geocoder: geocoder, logger: logger}
}

// AddClient geocodes the given address and inserts a new unpaired Client
// (§4.5's "addClient" operation).
func (s *Service) AddClient(ctx context.Context, name, addressLine, city, state, zip, notes string) (*model.Client, error) {
	na := normalize.Normalize(fmt.Sprintf("%s, %s, %s %s", addressLine, city, state, zip))
	g, err := s.geocoder.Geocode(ctx, na)
	if err != nil {
		return nil, fmt.Errorf("simulation: add client geocode: %w", err)
	}
	c := &model.Client{
		Name:          name,
		AddressLine:   addressLine,
		City:          city,
		State:         state,
		Zip:           zip,
		Geocode:       g,
		PairingStatus: model.Unpaired,
		Notes:         notes,
	}
	created, err := s.clientRepo.Create(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("simulation: add client: %w", err)
	}
	if err := s.clientRepo.UpdateGeocode(ctx, created.ID, g); err != nil {
		return nil, fmt.Errorf("simulation: persist client geocode: %w", err)
	}
	created.Geocode = g
	return created, nil
}

// RunSimulation proposes, for every unpaired Client with coordinates, the
// single best available Technician under the travel budget, expiring any
// stale `proposed` proposal for that client first (§4.5).
func (s *Service) RunSimulation(ctx context.Context, simulationRunID int64) ([]*model.MatchProposal, error) {
	clients, err := s.clientRepo.ListUnpairedWithCoords(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation: list unpaired clients: %w", err)
	}
	technicians, err := s.techRepo.ListAvailableWithCoordsAndZip(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation: list available technicians: %w", err)
	}

	var proposals []*model.MatchProposal
	for _, c := range clients {
		if err := s.simRepo.ExpirePreviousProposed(ctx, c.ID); err != nil {
			s.logger.Warn("simulation: expire previous proposals failed", zap.Int64("client_id", c.ID), zap.Error(err))
		}

		cp, ok := geo.FromGeocode(c.Geocode)
		if !ok {
			continue
		}

		best, bestMinutes, bestDistance, found := bestTechnicianFor(cp, technicians)
		if !found {
			continue
		}

		p, err := s.simRepo.CreateProposal(ctx, &model.MatchProposal{
			ClientID:          c.ID,
			TechnicianID:      best.ID,
			TravelTimeMinutes: bestMinutes,
			DistanceMeters:    bestDistance,
			SimulationRunID:   simulationRunID,
		})
		if err != nil {
			s.logger.Warn("simulation: create proposal failed", zap.Int64("client_id", c.ID), zap.Error(err))
			continue
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// bestTechnicianFor walks the available technician set and returns the
// one minimizing haversine-estimated travel time under the budget. It
// intentionally reuses the lightweight pkg/geo estimator rather than the
// full Travel-Time Cache: a simulation proposal is advisory only and
// §4.5 does not require it to consume the external-provider budget.
func bestTechnicianFor(cp geo.Point, technicians []*model.Technician) (*model.Technician, float64, float64, bool) {
	var best *model.Technician
	var bestSeconds float64
	var bestMiles float64

	for _, t := range technicians {
		tp, ok := geo.FromGeocode(t.Geocode)
		if !ok {
			continue
		}
		miles := geo.HaversineMiles(cp, tp)
		seconds := geo.EstimateSecondsByMode(cp, tp, travelModeFor(t.TransportMode))
		if seconds/60.0 > MaxTravelMinutes {
			continue
		}
		if best == nil || seconds < bestSeconds {
			best, bestSeconds, bestMiles = t, seconds, miles
		}
	}
	if best == nil {
		return nil, 0, 0, false
	}
	return best, bestSeconds / 60.0, bestMiles * 1609.344, true
}

func travelModeFor(t model.TransportMode) model.TravelMode {
	if t == model.ModeTransit {
		return model.TravelTransit
	}
	return model.TravelDriving
}

// ApproveProposal approves a proposal, activating a Pairing and locking
// the Technician (§4.5).
func (s *Service) ApproveProposal(ctx context.Context, proposalID int64) (*model.Pairing, error) {
	pairing, err := s.simRepo.ApproveProposal(ctx, proposalID)
	if err != nil {
		return nil, classifyError(err)
	}
	return pairing, nil
}

// RejectProposal rejects a pending proposal.
func (s *Service) RejectProposal(ctx context.Context, proposalID int64) error {
	if err := s.simRepo.RejectProposal(ctx, proposalID); err != nil {
		return classifyError(err)
	}
	return nil
}

// DeferProposal defers a pending proposal, exempting it from the next
// RunSimulation's expiration sweep.
func (s *Service) DeferProposal(ctx context.Context, proposalID int64) error {
	if err := s.simRepo.DeferProposal(ctx, proposalID); err != nil {
		return classifyError(err)
	}
	return nil
}

// ReopenTechnician deactivates a technician's active pairings and frees
// them for future matching (§4.5). Travel-time cache entries are left
// intact: reopening changes availability, not coordinates, so no
// invalidation is required (unlike cancel.go's post-cancellation surge
// cache bust, which follows a coordinate-relevant state change).
func (s *Service) ReopenTechnician(ctx context.Context, technicianID int64) error {
	if err := s.simRepo.ReopenTechnician(ctx, technicianID); err != nil {
		return classifyError(err)
	}
	return nil
}

// GetProposal fetches a single proposal by id.
func (s *Service) GetProposal(ctx context.Context, id int64) (*model.MatchProposal, error) {
	return s.simRepo.GetProposal(ctx, id)
}

// ListProposals returns proposals in the given status.
func (s *Service) ListProposals(ctx context.Context, status model.ProposalStatus) ([]*model.MatchProposal, error) {
	return s.simRepo.ListByStatus(ctx, status)
}
