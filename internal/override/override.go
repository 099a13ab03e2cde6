// Package override implements the Override Store (C4): locked, blocked,
// and manual (client, technician) rules with effective-date windows.
// Grounded on the teacher's general repository-backed CRUD shape
// (internal/repository/riderequest_repository.go's create/validate
// style), generalized since the teacher has no override-equivalent
// table, plus the conflict policy decided in SPEC_FULL.md §5.
package override

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
)

// ConflictPolicy governs what happens when a (client, technician) pair
// would be simultaneously LOCKED and BLOCKED under overlapping effective
// windows (§3 Override invariant).
type ConflictPolicy string

const (
	// RejectOnOverlap refuses the write that would create the conflict.
	RejectOnOverlap ConflictPolicy = "reject_on_overlap"
	// LastWriteWins allows the write; the matcher's own step 2 logged-skip
	// handles the runtime ambiguity (§4.3 step 2). This is the default per
	// SPEC_FULL.md §5.
	LastWriteWins ConflictPolicy = "last_write_wins"
)

// ErrConflictingOverride is returned by Upsert under RejectOnOverlap when
// a pair already has the opposing override type in an overlapping window.
var ErrConflictingOverride = fmt.Errorf("override: conflicting LOCKED/BLOCKED window for this pair")

// Store is the Override Store (C4).
type Store struct {
	repo   *repository.OverrideRepository
	policy ConflictPolicy
	logger *zap.Logger
}

// New constructs a Store. An empty policy defaults to LastWriteWins.
func New(repo *repository.OverrideRepository, policy ConflictPolicy, logger *zap.Logger) *Store {
	if policy == "" {
		policy = LastWriteWins
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, policy: policy, logger: logger}
}

// Upsert creates or replaces the override for (clientID, technicianID),
// applying the configured conflict policy first.
func (s *Store) Upsert(ctx context.Context, o *model.Override) (*model.Override, error) {
	if s.policy == RejectOnOverlap {
		existing, err := s.repo.GetByPair(ctx, o.ClientID, o.TechnicianID)
		if err != nil {
			return nil, fmt.Errorf("override: check existing: %w", err)
		}
		if existing != nil && opposingTypes(existing.Type, o.Type) && windowsOverlap(existing, o) {
			return nil, ErrConflictingOverride
		}
	}
	result, err := s.repo.Upsert(ctx, o)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func opposingTypes(a, b model.OverrideType) bool {
	pair := func(x, y model.OverrideType) bool {
		return x == model.LockedAssignment && y == model.BlockPair
	}
	return pair(a, b) || pair(b, a)
}

func windowsOverlap(a *model.Override, b *model.Override) bool {
	aFrom, aTo := a.EffectiveFrom, a.EffectiveTo
	bFrom, bTo := b.EffectiveFrom, b.EffectiveTo
	if aTo != nil && bFrom != nil && aTo.Before(*bFrom) {
		return false
	}
	if bTo != nil && aFrom != nil && bTo.Before(*aFrom) {
		return false
	}
	return true
}

// GetByID, GetByPair, DeleteByID, DeleteByPair pass through to the
// repository; the store layer only adds value on writes.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.Override, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Store) GetByPair(ctx context.Context, clientID, technicianID int64) (*model.Override, error) {
	return s.repo.GetByPair(ctx, clientID, technicianID)
}

func (s *Store) DeleteByID(ctx context.Context, id int64) error {
	return s.repo.DeleteByID(ctx, id)
}

func (s *Store) DeleteByPair(ctx context.Context, clientID, technicianID int64) error {
	return s.repo.DeleteByPair(ctx, clientID, technicianID)
}

// CurrentLocks returns a map of (clientID,technicianID) -> Override for
// every current LOCKED_ASSIGNMENT, keyed for the matcher's step 2.
func (s *Store) CurrentLocks(ctx context.Context, asOf time.Time) (map[pairKey]*model.Override, error) {
	return s.currentByType(ctx, asOf, model.LockedAssignment)
}

// CurrentBlocks returns a set of currently BLOCK_PAIR overrides, keyed for
// the matcher's per-pair skip check.
func (s *Store) CurrentBlocks(ctx context.Context, asOf time.Time) (map[pairKey]*model.Override, error) {
	return s.currentByType(ctx, asOf, model.BlockPair)
}

// CurrentManual returns a map of (clientID,technicianID) -> Override for
// every current MANUAL_ASSIGNMENT, keyed for the matcher's manual-assignment
// step.
func (s *Store) CurrentManual(ctx context.Context, asOf time.Time) (map[pairKey]*model.Override, error) {
	return s.currentByType(ctx, asOf, model.ManualAssignment)
}

type pairKey struct {
	ClientID     int64
	TechnicianID int64
}

func (s *Store) currentByType(ctx context.Context, asOf time.Time, t model.OverrideType) (map[pairKey]*model.Override, error) {
	all, err := s.repo.ListCurrent(ctx, asOf)
	if err != nil {
		return nil, fmt.Errorf("override: list current: %w", err)
	}
	out := make(map[pairKey]*model.Override)
	for _, o := range all {
		if o.Type != t {
			continue
		}
		out[pairKey{ClientID: o.ClientID, TechnicianID: o.TechnicianID}] = o
	}
	return out, nil
}
