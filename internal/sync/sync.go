// Package sync implements CRM Sync (C8): batch-upserting Client records
// from an external CRM feed, detecting address changes, and re-geocoding
// + invalidating the Travel-Time Cache for anything that moved. Grounded
// on the teacher's internal/service/matching.go batch-fan-out shape
// (bounded-concurrency errgroup over a slice of independent units of
// work), generalized from ride-batch scoring to CRM-row upserts. CSV
// ingestion is out of scope per spec.md's Non-goals — this package only
// ever consumes already-parsed records, leaving file parsing to the
// caller (the admin handler, for the one seed-data path that needs it).
package sync

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shiva/geomatch/internal/geocode"
	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/normalize"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/pkg/geo"
)

// DefaultConcurrency bounds how many CRM rows are upserted/geocoded at
// once, mirroring the Travel-Time Cache's semaphore-gated external-call
// budget (§4.2) so a sync run can't starve concurrent matcher runs.
const DefaultConcurrency = 5

// Record is one CRM-supplied client row, already parsed by the caller.
type Record struct {
	CRMID       string
	Name        string
	AddressLine string
	City        string
	State       string
	Zip         string
	Notes       string
}

// Service is CRM Sync (C8).
type Service struct {
	clientRepo  *repository.ClientRepository
	travelCache travelInvalidator
	geocoder    *geocode.Client
	runRepo     *repository.SyncRunRepository
	concurrency int
	logger      *zap.Logger
}

// travelInvalidator is the subset of travel.Cache that sync depends on,
// kept as an interface so tests can fake it without standing up Redis.
type travelInvalidator interface {
	InvalidateEntity(ctx context.Context, entityType model.EntityType, entityHash string) error
}

// New constructs a Service.
func New(clientRepo *repository.ClientRepository, travelCache travelInvalidator, geocoder *geocode.Client, runRepo *repository.SyncRunRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		clientRepo:  clientRepo,
		travelCache: travelCache,
		geocoder:    geocoder,
		runRepo:     runRepo,
		concurrency: DefaultConcurrency,
		logger:      logger,
	}
}

// SyncClients upserts every record, re-geocoding and busting the
// Travel-Time Cache for any client whose address actually changed
// (§4.6). It never aborts on a single-row failure; failures are tallied
// and returned on the finished SyncRun.
func (s *Service) SyncClients(ctx context.Context, records []Record) (*model.SyncRun, error) {
	run, err := s.runRepo.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("sync: start run: %w", err)
	}

	existing, err := s.existingByCRMID(ctx)
	if err != nil {
		run.Status = "failed"
		run.Errors = append(run.Errors, err.Error())
		_ = s.runRepo.Finish(ctx, run)
		return run, fmt.Errorf("sync: load existing clients: %w", err)
	}

	var mu syncCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			changed, err := s.syncOne(gctx, rec, existing[rec.CRMID])
			mu.record(rec.CRMID, changed, err)
			return nil // per-row errors are tallied, not propagated
		})
	}
	_ = g.Wait()

	run.Upserted = mu.upserted
	run.Skipped = mu.skipped
	run.Failed = mu.failed
	run.Errors = mu.errors
	run.Status = "completed"
	if err := s.runRepo.Finish(ctx, run); err != nil {
		return run, fmt.Errorf("sync: finish run: %w", err)
	}
	return run, nil
}

func (s *Service) existingByCRMID(ctx context.Context) (map[string]*model.Client, error) {
	all, err := s.clientRepo.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*model.Client, len(all))
	for _, c := range all {
		if c.CRMID != nil {
			out[*c.CRMID] = c
		}
	}
	return out, nil
}

// syncOne upserts a single record and returns whether its address changed
// (triggering re-geocode + cache invalidation).
func (s *Service) syncOne(ctx context.Context, rec Record, prior *model.Client) (bool, error) {
	crmID := rec.CRMID
	addressChanged := prior == nil || addressDiffers(prior, rec)

	c := &model.Client{
		Name:          rec.Name,
		AddressLine:   rec.AddressLine,
		City:          rec.City,
		State:         rec.State,
		Zip:           rec.Zip,
		PairingStatus: model.Unpaired,
		CRMID:         &crmID,
		CoordsStale:   addressChanged,
		Notes:         rec.Notes,
	}

	updated, _, err := s.clientRepo.UpsertByCRMID(ctx, c)
	if err != nil {
		return false, fmt.Errorf("upsert crm_id %s: %w", crmID, err)
	}

	if !addressChanged {
		return false, nil
	}

	na := normalize.Normalize(fmt.Sprintf("%s, %s, %s %s", rec.AddressLine, rec.City, rec.State, rec.Zip))
	g, err := s.geocoder.Geocode(ctx, na)
	if err != nil {
		return true, fmt.Errorf("re-geocode crm_id %s: %w", crmID, err)
	}
	if err := s.clientRepo.UpdateGeocode(ctx, updated.ID, g); err != nil {
		return true, fmt.Errorf("persist geocode crm_id %s: %w", crmID, err)
	}

	if prior != nil {
		if p, ok := geo.FromGeocode(prior.Geocode); ok {
			if err := s.travelCache.InvalidateEntity(ctx, model.EntityClient, geo.RoundedHash(p)); err != nil {
				s.logger.Warn("sync: travel cache invalidation failed", zap.String("crm_id", crmID), zap.Error(err))
			}
		}
	}

	return true, nil
}

func addressDiffers(prior *model.Client, rec Record) bool {
	return prior.AddressLine != rec.AddressLine ||
		prior.City != rec.City ||
		prior.State != rec.State ||
		prior.Zip != rec.Zip
}

// syncCounters tallies per-row outcomes across the errgroup's goroutines,
// guarded by a mutex since g.Go runs them concurrently.
type syncCounters struct {
	mu       sync.Mutex
	upserted int
	skipped  int
	failed   int
	errors   []string
}

func (m *syncCounters) record(crmID string, changed bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.failed++
		m.errors = append(m.errors, fmt.Sprintf("crm_id %s: %v", crmID, err))
		return
	}
	if changed {
		m.upserted++
	} else {
		m.skipped++
	}
}
