package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/matcher"
	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
)

// Runner is the single entrypoint shared by the REST admin surface and
// the scheduler for "run the batch matcher once" (§4.3, §6.1, §6.3):
// load candidates, run the Matcher, and record the run's counters in both
// the ledger and the scheduling_meta singleton. The per-client assignments
// themselves are not stored.
type Runner struct {
	clientRepo *repository.ClientRepository
	techRepo   *repository.TechnicianRepository
	matcher    *matcher.Matcher
	ledger     *Ledger
	metaRepo   *repository.MetaRepository
	logger     *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(clientRepo *repository.ClientRepository, techRepo *repository.TechnicianRepository, m *matcher.Matcher, l *Ledger, metaRepo *repository.MetaRepository, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{clientRepo: clientRepo, techRepo: techRepo, matcher: m, ledger: l, metaRepo: metaRepo, logger: logger}
}

// RunMatching loads the unpaired Clients that have coordinates and the
// available Technicians that have coordinates and a ZIP, executes one
// Matcher run, and records its counters. triggeredBy is
// carried in the ledger's metadata ("api" or "scheduler").
func (r *Runner) RunMatching(ctx context.Context, triggeredBy string) error {
	run, err := r.ledger.Start(ctx)
	if err != nil {
		return fmt.Errorf("runner: start ledger entry: %w", err)
	}

	clients, err := r.clientRepo.ListUnpairedWithCoords(ctx)
	if err != nil {
		return fmt.Errorf("runner: list clients: %w", err)
	}
	technicians, err := r.techRepo.ListAvailableWithCoordsAndZip(ctx)
	if err != nil {
		return fmt.Errorf("runner: list technicians: %w", err)
	}

	result, err := r.matcher.Run(ctx, clients, technicians)
	if err != nil {
		r.logger.Warn("runner: matcher returned no-op result", zap.Error(err))
		result = model.MatchingResult{}
	}

	meta := Metadata{Strategy: "greedy", TriggeredBy: triggeredBy}
	if err := r.ledger.Finish(ctx, run, result, len(clients), len(technicians), meta); err != nil {
		return fmt.Errorf("runner: finish ledger entry: %w", err)
	}

	summary := fmt.Sprintf("matched=%d standby=%d needs_review=%d no_location=%d",
		result.LockedCount+result.AutoCount, result.StandbyCount, result.NeedsReviewCount, result.NoLocationCount)
	if err := r.metaRepo.RecordMatchingRun(ctx, summary); err != nil {
		r.logger.Warn("runner: record scheduling_meta failed", zap.Error(err))
	}

	r.logger.Info("runner: matching run complete", zap.Int64("run_id", run.ID), zap.String("summary", summary))
	return nil
}
