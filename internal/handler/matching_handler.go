package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/ledger"
	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
)

// MatchingHandler serves /admin/matching endpoints (§6.1).
type MatchingHandler struct {
	runner     *ledger.Runner
	ledger     *ledger.Ledger
	clientRepo *repository.ClientRepository
	logger     *zap.Logger
}

// NewMatchingHandler constructs a MatchingHandler.
func NewMatchingHandler(runner *ledger.Runner, l *ledger.Ledger, clientRepo *repository.ClientRepository, logger *zap.Logger) *MatchingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MatchingHandler{runner: runner, ledger: l, clientRepo: clientRepo, logger: logger}
}

// RunMatching handles POST /admin/matching/run-matching.
func (h *MatchingHandler) RunMatching(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.RunMatching(r.Context(), "api"); err != nil {
		h.logger.Error("run-matching failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "matching run failed"))
		return
	}

	run, err := h.ledger.Latest(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "matching run completed but summary unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// MatchingStatus handles GET /admin/matching/matching-status.
func (h *MatchingHandler) MatchingStatus(w http.ResponseWriter, r *http.Request) {
	run, err := h.ledger.Latest(r.Context())
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "no matching run has completed yet"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type unmatchedEntry struct {
	ClientID int64                  `json:"clientId"`
	Name     string                 `json:"name"`
	Reason   model.AssignmentStatus `json:"reason"`
}

// Unmatched handles GET /admin/matching/unmatched — clients presently
// unpaired with no way to resolve why from a prior run's Assignment
// list, since that list isn't itself persisted (§3: only counters are).
// This derives a best-effort reason from the client's own stored state.
func (h *MatchingHandler) Unmatched(w http.ResponseWriter, r *http.Request) {
	clients, err := h.clientRepo.ListAll(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to list clients"))
		return
	}

	var out []unmatchedEntry
	for _, c := range clients {
		if c.PairingStatus != model.Unpaired {
			continue
		}
		reason := model.StatusStandby
		if c.Geocode == nil {
			reason = model.StatusNoLocation
		}
		out = append(out, unmatchedEntry{ClientID: c.ID, Name: c.Name, Reason: reason})
	}
	writeJSON(w, http.StatusOK, out)
}
