// Package ledger implements the Match Run Ledger (C9): persisting each
// match run's inputs, outcomes, and external-resource counters. Grounded
// on the teacher's trip/ride_request persistence style in
// internal/repository/ride_repository.go — a thin record/read layer with
// no business logic of its own.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
)

// Ledger is the Match Run Ledger (C9).
type Ledger struct {
	repo *repository.MatchRunRepository
}

// New constructs a Ledger.
func New(repo *repository.MatchRunRepository) *Ledger {
	return &Ledger{repo: repo}
}

// Start opens a new match run record.
func (l *Ledger) Start(ctx context.Context) (*model.MatchRun, error) {
	return l.repo.Start(ctx)
}

// Metadata carries the free-form run context persisted alongside counters
// (e.g. which strategy ran, config snapshot) — kept as a JSON blob in the
// metadata column, matching the teacher's general "varchar metadata" use.
type Metadata struct {
	Strategy         string `json:"strategy"`
	MaxTravelMinutes float64 `json:"max_travel_minutes"`
	TriggeredBy      string `json:"triggered_by"` // "api" or "scheduler"
}

// Finish writes the final counters for a run, deriving them from a
// MatchingResult and input counts.
func (l *Ledger) Finish(ctx context.Context, run *model.MatchRun, result model.MatchingResult, inputClients, inputTechs int, meta Metadata) error {
	run.InputClientCount = inputClients
	run.InputTechCount = inputTechs
	run.LockedCount = result.LockedCount
	run.AutoCount = result.AutoCount
	run.BlockedCount = result.BlockedCount
	run.StandbyCount = result.StandbyCount
	run.NoLocationCount = result.NoLocationCount
	run.NeedsReviewCount = result.NeedsReviewCount
	run.MatchedCount = result.LockedCount + result.AutoCount
	run.GoogleAPICalls = result.GoogleAPICalls
	run.CacheHits = result.CacheHits
	run.CacheHitRate = cacheHitRate(result.CacheHits, result.GoogleAPICalls)

	if raw, err := json.Marshal(meta); err == nil {
		run.Metadata = string(raw)
	}

	if err := l.repo.Finish(ctx, run); err != nil {
		return fmt.Errorf("ledger: finish run %d: %w", run.ID, err)
	}
	return nil
}

func cacheHitRate(hits, apiCalls int) float64 {
	total := hits + apiCalls
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// Latest returns the most recent match run summary, used by
// GET /admin/matching/matching-status.
func (l *Ledger) Latest(ctx context.Context) (*model.MatchRun, error) {
	return l.repo.Latest(ctx)
}
