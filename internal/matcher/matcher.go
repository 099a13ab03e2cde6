// Package matcher implements the Matcher (C5): a constrained best-first
// assignment over Technician × Client pairs, honoring locked/blocked
// overrides and multiple transport modes. Grounded directly on the
// teacher's MatchingService.MatchRiders (internal/service/matching.go):
// fetch candidates → filter hard constraints → score → greedy-select,
// reused structurally and generalized from rider/trip pairs to
// client/technician pairs and from detour-minimization to §4.3's
// lexicographic scoring.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/geocode"
	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/normalize"
	"github.com/shiva/geomatch/internal/override"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/internal/travel"
	"github.com/shiva/geomatch/internal/validate"
	"github.com/shiva/geomatch/pkg/geo"
)

// ErrNoInput is the per-run fatal error when either side of the match is
// empty (§4.4 failure semantics: only complete loss of input aborts).
var ErrNoInput = errors.New("matcher: no clients or no technicians to match")

// Config governs the matcher's travel budget.
type Config struct {
	MaxTravelMinutes float64
}

// Strategy is the pluggable assignment algorithm (§9: a globally-optimal
// bipartite variant is a documented alternative implementation slot).
// Only GreedyStrategy is implemented, per SPEC_FULL.md §5's open-question
// decision.
type Strategy interface {
	Assign(ctx context.Context, m *Matcher, clients []*model.Client, technicians []*model.Technician) (model.MatchingResult, error)
}

// Matcher is the Matcher (C5).
type Matcher struct {
	clientRepo *repository.ClientRepository
	techRepo   *repository.TechnicianRepository
	overrides  *override.Store
	geocoder   *geocode.Client
	travel     *travel.Cache
	strategy   Strategy
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Matcher using the greedy strategy by default.
func New(clientRepo *repository.ClientRepository, techRepo *repository.TechnicianRepository, overrides *override.Store, geocoder *geocode.Client, travelCache *travel.Cache, cfg Config, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{
		clientRepo: clientRepo,
		techRepo:   techRepo,
		overrides:  overrides,
		geocoder:   geocoder,
		travel:     travelCache,
		strategy:   GreedyStrategy{},
		cfg:        cfg,
		logger:     logger,
	}
}

// WithStrategy overrides the assignment strategy (e.g. for tests).
func (m *Matcher) WithStrategy(s Strategy) *Matcher {
	m.strategy = s
	return m
}

// Run executes one match run over the given Clients and Technicians
// (§4.3/§4.4). It returns ErrNoInput when either side is empty, and an
// error when overrides cannot be loaded; per-pair failures are logged and
// absorbed into the result.
func (m *Matcher) Run(ctx context.Context, clients []*model.Client, technicians []*model.Technician) (model.MatchingResult, error) {
	if len(clients) == 0 || len(technicians) == 0 {
		return model.MatchingResult{}, ErrNoInput
	}
	return m.strategy.Assign(ctx, m, clients, technicians)
}

// allowedModes implements §4.3's per-transport-mode travel mode set.
func allowedModes(t model.TransportMode) []model.TravelMode {
	switch t {
	case model.ModeCar:
		return []model.TravelMode{model.TravelDriving}
	case model.ModeTransit:
		return []model.TravelMode{model.TravelTransit}
	case model.ModeBoth:
		return []model.TravelMode{model.TravelDriving, model.TravelTransit}
	default:
		return []model.TravelMode{model.TravelDriving}
	}
}

// ensureClientCoords geocodes a client in place if it has no coordinates,
// persisting the result and invalidating stale cache rows (§4.3 step 3a).
func (m *Matcher) ensureClientCoords(ctx context.Context, c *model.Client) (geo.Point, bool) {
	if p, ok := geo.FromGeocode(c.Geocode); ok {
		return p, true
	}
	na := normalize.Normalize(addressString(c.AddressLine, c.City, c.State, c.Zip))
	g, err := m.geocoder.Geocode(ctx, na)
	if err != nil {
		m.logger.Warn("matcher: client geocode failed", zap.Int64("client_id", c.ID), zap.Error(err))
		return geo.Point{}, false
	}
	c.Geocode = g
	if err := m.clientRepo.UpdateGeocode(ctx, c.ID, g); err != nil {
		m.logger.Warn("matcher: persist client geocode failed", zap.Int64("client_id", c.ID), zap.Error(err))
	}
	return geo.Point{Lat: g.Lat, Lng: g.Lng}, true
}

func (m *Matcher) ensureTechCoords(ctx context.Context, t *model.Technician) (geo.Point, bool) {
	if p, ok := geo.FromGeocode(t.Geocode); ok {
		return p, true
	}
	na := normalize.Normalize(addressString(t.AddressLine, t.City, t.State, t.Zip))
	g, err := m.geocoder.Geocode(ctx, na)
	if err != nil {
		m.logger.Warn("matcher: technician geocode failed", zap.Int64("technician_id", t.ID), zap.Error(err))
		return geo.Point{}, false
	}
	t.Geocode = g
	if err := m.techRepo.UpdateGeocode(ctx, t.ID, g); err != nil {
		m.logger.Warn("matcher: persist technician geocode failed", zap.Int64("technician_id", t.ID), zap.Error(err))
	}
	return geo.Point{Lat: g.Lat, Lng: g.Lng}, true
}

func addressString(line, city, state, zip string) string {
	return fmt.Sprintf("%s, %s, %s %s", line, city, state, zip)
}

// candidate is one (client, technician, mode) scoring tuple per §4.3
// step 3b/3c.
type candidate struct {
	technician     *model.Technician
	durationSec    float64
	distanceMiles  float64
	mode           model.TravelMode
	bucket         string
	sampleCount    int
	cacheHit       bool
	externalCalls  int
	fallback       bool
}

// lessCandidate implements §4.3 step 3c's lexicographic order: minimize
// durationSecPessimistic, maximize technician geocode confidence,
// minimize distance.
func lessCandidate(a, b candidate) bool {
	if a.durationSec != b.durationSec {
		return a.durationSec < b.durationSec
	}
	aConf, bConf := confidenceOf(a.technician), confidenceOf(b.technician)
	if aConf != bConf {
		return aConf > bConf
	}
	return a.distanceMiles < b.distanceMiles
}

func confidenceOf(t *model.Technician) float64 {
	if t.Geocode == nil {
		return 0
	}
	return t.Geocode.Confidence
}

// GreedyStrategy is the only implemented assignment strategy: a
// consumed-Technician exclusion set walked in input order, explicit for
// predictability and incrementality per spec.md §4.3/§9.
type GreedyStrategy struct{}

// Assign implements Strategy.
func (GreedyStrategy) Assign(ctx context.Context, m *Matcher, clients []*model.Client, technicians []*model.Technician) (model.MatchingResult, error) {
	result := model.MatchingResult{}
	consumedTech := make(map[int64]bool)

	locks, err := m.overrides.CurrentLocks(ctx, time.Now())
	if err != nil {
		return result, fmt.Errorf("matcher: load locks: %w", err)
	}
	blocks, err := m.overrides.CurrentBlocks(ctx, time.Now())
	if err != nil {
		return result, fmt.Errorf("matcher: load blocks: %w", err)
	}
	manuals, err := m.overrides.CurrentManual(ctx, time.Now())
	if err != nil {
		return result, fmt.Errorf("matcher: load manual assignments: %w", err)
	}

	techByID := make(map[int64]*model.Technician, len(technicians))
	for _, t := range technicians {
		techByID[t.ID] = t
	}

	// ── Step 2: locked assignments first ────────────────
	var remainingClients []*model.Client
	lockedClient := make(map[int64]bool)
	for _, c := range clients {
		var lockedOverride *model.Override
		var lockedTechID int64
		for key, o := range locks {
			if key.ClientID == c.ID {
				lockedOverride = o
				lockedTechID = key.TechnicianID
				break
			}
		}
		if lockedOverride == nil {
			remainingClients = append(remainingClients, c)
			continue
		}

		if blockOverride, blocked := blocks[pairKeyOf(c.ID, lockedTechID)]; blocked && blockOverride != nil {
			m.logger.Warn("matcher: pair both locked and blocked, skipping (invariant violation)",
				zap.Int64("client_id", c.ID), zap.Int64("technician_id", lockedTechID))
			result.BlockedCount++
			remainingClients = append(remainingClients, c)
			continue
		}

		tech, ok := techByID[lockedTechID]
		if !ok {
			m.logger.Warn("matcher: locked technician not in input set", zap.Int64("technician_id", lockedTechID))
			remainingClients = append(remainingClients, c)
			continue
		}

		assignment := model.Assignment{
			ClientID:     c.ID,
			TechnicianID: &lockedTechID,
			Status:       model.StatusMatched,
			Source:       model.SourceLocked,
		}
		if cp, ok1 := geo.FromGeocode(c.Geocode); ok1 {
			if tp, ok2 := geo.FromGeocode(tech.Geocode); ok2 {
				res, mode, err := m.bestAvailableTravel(ctx, cp, tp, tech, &result)
				if err == nil {
					assignment.TravelTimeSeconds = res.DurationSecPessimistic
					assignment.Mode = mode
					assignment.DistanceMiles = geo.HaversineMiles(cp, tp)
					assignment.Explain = model.Explain{ChosenMode: mode, Bucket: res.Bucket, Samples: res.SampleCount}
				}
			}
		}

		consumedTech[lockedTechID] = true
		lockedClient[c.ID] = true
		result.Assignments = append(result.Assignments, assignment)
		result.LockedCount++
	}

	// ── Step 2b: manual assignments, forced ahead of auto-match ──
	manualClient := make(map[int64]bool)
	for _, c := range remainingClients {
		var manualOverride *model.Override
		var manualTechID int64
		for key, o := range manuals {
			if key.ClientID == c.ID {
				manualOverride = o
				manualTechID = key.TechnicianID
				break
			}
		}
		if manualOverride == nil {
			continue
		}

		if blockOverride, blocked := blocks[pairKeyOf(c.ID, manualTechID)]; blocked && blockOverride != nil {
			m.logger.Warn("matcher: pair both manually assigned and blocked, skipping (invariant violation)",
				zap.Int64("client_id", c.ID), zap.Int64("technician_id", manualTechID))
			result.BlockedCount++
			continue
		}

		tech, ok := techByID[manualTechID]
		if !ok {
			m.logger.Warn("matcher: manually assigned technician not in input set", zap.Int64("technician_id", manualTechID))
			continue
		}
		if consumedTech[manualTechID] {
			m.logger.Warn("matcher: manually assigned technician already consumed, skipping",
				zap.Int64("client_id", c.ID), zap.Int64("technician_id", manualTechID))
			continue
		}

		assignment := model.Assignment{
			ClientID:     c.ID,
			TechnicianID: &manualTechID,
			Status:       model.StatusMatched,
			Source:       model.SourceManual,
		}
		if cp, ok1 := geo.FromGeocode(c.Geocode); ok1 {
			if tp, ok2 := geo.FromGeocode(tech.Geocode); ok2 {
				res, mode, err := m.bestAvailableTravel(ctx, cp, tp, tech, &result)
				if err == nil {
					assignment.TravelTimeSeconds = res.DurationSecPessimistic
					assignment.Mode = mode
					assignment.DistanceMiles = geo.HaversineMiles(cp, tp)
					assignment.Explain = model.Explain{ChosenMode: mode, Bucket: res.Bucket, Samples: res.SampleCount}
				}
			}
		}

		consumedTech[manualTechID] = true
		manualClient[c.ID] = true
		result.Assignments = append(result.Assignments, assignment)
		result.ManualCount++
	}

	// ── Step 3: auto-match remaining clients ────────────
	for _, c := range remainingClients {
		if lockedClient[c.ID] || manualClient[c.ID] {
			continue
		}

		cp, ok := m.ensureClientCoords(ctx, c)
		if !ok {
			result.Assignments = append(result.Assignments, model.Assignment{ClientID: c.ID, Status: model.StatusNoLocation})
			result.NoLocationCount++
			continue
		}

		var best *candidate
		for _, t := range technicians {
			if consumedTech[t.ID] {
				continue
			}
			if _, blocked := blocks[pairKeyOf(c.ID, t.ID)]; blocked {
				result.BlockedCount++
				continue
			}

			tp, ok := m.ensureTechCoords(ctx, t)
			if !ok {
				continue
			}

			cand := m.bestCandidateForPair(ctx, cp, tp, t, &result)
			if cand == nil {
				continue
			}
			if best == nil || lessCandidate(*cand, *best) {
				best = cand
			}
		}

		if best == nil {
			result.Assignments = append(result.Assignments, model.Assignment{ClientID: c.ID, Status: model.StatusStandby})
			result.StandbyCount++
			continue
		}

		techID := best.technician.ID
		assignment := model.Assignment{
			ClientID:          c.ID,
			TechnicianID:      &techID,
			TravelTimeSeconds: best.durationSec,
			DistanceMiles:     best.distanceMiles,
			Status:            model.StatusMatched,
			Mode:              best.mode,
			Source:            model.SourceAuto,
			Explain: model.Explain{
				ChosenMode: best.mode,
				Bucket:     best.bucket,
				Samples:    best.sampleCount,
			},
		}
		if best.fallback {
			assignment.Explain.Flags = append(assignment.Explain.Flags, "haversine_fallback")
		}

		// ── Step 5: validation pass ──────────────────────
		vres := validate.Validate(validate.Input{
			ClientGeocode:     c.Geocode,
			TechnicianGeocode: best.technician.Geocode,
			ClientAreaLabel:   c.City,
			TechAreaLabel:     best.technician.City,
			DistanceMiles:     best.distanceMiles,
			TravelTimeMinutes: best.durationSec / 60.0,
			Method:            methodFromSource(c.Geocode),
		})
		if vres.NeedsReview {
			assignment.Status = model.StatusNeedsReview
			result.NeedsReviewCount++
			for _, reason := range vres.Reasons {
				assignment.Explain.Flags = append(assignment.Explain.Flags, string(reason))
			}
		}
		for _, w := range vres.Warnings {
			assignment.Explain.Flags = append(assignment.Explain.Flags, string(w))
		}

		consumedTech[techID] = true
		result.Assignments = append(result.Assignments, assignment)
		result.AutoCount++
	}

	return result, nil
}

func pairKeyOf(clientID, techID int64) struct {
	ClientID     int64
	TechnicianID int64
} {
	return struct {
		ClientID     int64
		TechnicianID int64
	}{clientID, techID}
}

// bestCandidateForPair tries every allowed mode for (client, technician)
// and returns the best one under the travel budget, or nil (§4.3 step 3b).
func (m *Matcher) bestCandidateForPair(ctx context.Context, cp, tp geo.Point, t *model.Technician, result *model.MatchingResult) *candidate {
	var best *candidate
	for _, mode := range allowedModes(t.TransportMode) {
		res, err := m.travel.GetTravelTime(ctx, cp, tp, model.EntityClient, model.EntityTechnician, mode)
		if err != nil {
			m.logger.Warn("matcher: travel time lookup failed", zap.Int64("technician_id", t.ID), zap.Error(err))
			continue
		}
		tallyTravelCounters(result, res)

		if res.DurationSecPessimistic > m.cfg.MaxTravelMinutes*60 {
			continue
		}
		distMiles := 0.0
		if res.DistanceMeters != nil {
			distMiles = *res.DistanceMeters / 1609.344
		} else {
			distMiles = geo.HaversineMiles(cp, tp)
		}
		cand := candidate{
			technician:    t,
			durationSec:   res.DurationSecPessimistic,
			distanceMiles: distMiles,
			mode:          mode,
			bucket:        res.Bucket,
			sampleCount:   res.SampleCount,
			cacheHit:      res.CacheHit,
			externalCalls: res.ExternalCalls,
			fallback:      res.Fallback,
		}
		if best == nil || cand.durationSec < best.durationSec {
			best = &cand
		}
	}
	return best
}

// bestAvailableTravel computes a travel time for display purposes on a
// LOCKED assignment, ignoring the budget (§4.3 step 2: "still compute
// travel time for display if both coordinates exist").
func (m *Matcher) bestAvailableTravel(ctx context.Context, cp, tp geo.Point, t *model.Technician, result *model.MatchingResult) (travel.Result, model.TravelMode, error) {
	modes := allowedModes(t.TransportMode)
	var bestRes travel.Result
	var bestMode model.TravelMode
	found := false
	for _, mode := range modes {
		res, err := m.travel.GetTravelTime(ctx, cp, tp, model.EntityClient, model.EntityTechnician, mode)
		if err != nil {
			continue
		}
		tallyTravelCounters(result, res)
		if !found || res.DurationSecPessimistic < bestRes.DurationSecPessimistic {
			bestRes = res
			bestMode = mode
			found = true
		}
	}
	if !found {
		return travel.Result{}, "", fmt.Errorf("matcher: no travel time available")
	}
	return bestRes, bestMode, nil
}

func tallyTravelCounters(result *model.MatchingResult, res travel.Result) {
	if res.CacheHit {
		result.CacheHits++
	}
	result.GoogleAPICalls += res.ExternalCalls
}

func methodFromSource(g *model.Geocode) model.NormalizationMethod {
	if g == nil {
		return model.MethodRaw
	}
	switch g.Source {
	case model.SourceZipOnly:
		return model.MethodZipOnly
	case model.SourceCityState:
		return model.MethodCityState
	case model.SourceFullAddress:
		return model.MethodFullAddress
	default:
		return model.MethodFullAddress
	}
}
