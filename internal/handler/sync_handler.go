package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/internal/sync"
)

// SyncHandler serves /admin/scheduling/sync-clients (§6.1).
type SyncHandler struct {
	svc     *sync.Service
	runRepo *repository.SyncRunRepository
	logger  *zap.Logger
}

// NewSyncHandler constructs a SyncHandler.
func NewSyncHandler(svc *sync.Service, runRepo *repository.SyncRunRepository, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{svc: svc, runRepo: runRepo, logger: logger}
}

// SyncClients handles POST /admin/scheduling/sync-clients. The request
// body is the already-parsed CRM record batch; fetching from the actual
// CRM API is left to the caller/integration layer, which is outside the
// matching engine's scope.
func (h *SyncHandler) SyncClients(w http.ResponseWriter, r *http.Request) {
	var records []sync.Record
	if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}

	run, err := h.svc.SyncClients(r.Context(), records)
	if err != nil {
		h.logger.Error("sync-clients failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "sync run failed"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// SyncStatus handles GET /admin/scheduling/sync-clients/status.
func (h *SyncHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	run, err := h.runRepo.Latest(r.Context())
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "no sync run has completed yet"))
		return
	}
	writeJSON(w, http.StatusOK, run)
}
