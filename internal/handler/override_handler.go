package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/override"
)

// OverrideHandler serves /admin/scheduling/overrides (§6.1).
type OverrideHandler struct {
	store *override.Store
}

// NewOverrideHandler constructs an OverrideHandler.
func NewOverrideHandler(store *override.Store) *OverrideHandler {
	return &OverrideHandler{store: store}
}

type overrideRequest struct {
	ClientID      int64      `json:"clientId"`
	TechnicianID  int64      `json:"technicianId"`
	Type          string     `json:"type"`
	EffectiveFrom *time.Time `json:"effectiveFrom,omitempty"`
	EffectiveTo   *time.Time `json:"effectiveTo,omitempty"`
}

// Upsert handles POST /admin/scheduling/overrides.
func (h *OverrideHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}

	o := &model.Override{
		ClientID:      req.ClientID,
		TechnicianID:  req.TechnicianID,
		Type:          model.OverrideType(req.Type),
		EffectiveFrom: req.EffectiveFrom,
		EffectiveTo:   req.EffectiveTo,
	}

	result, err := h.store.Upsert(r.Context(), o)
	if err != nil {
		if errors.Is(err, override.ErrConflictingOverride) {
			writeJSON(w, http.StatusConflict, errorBody("conflicting_override", "an opposing LOCKED/BLOCKED override already covers this window"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to upsert override"))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetByID handles GET /admin/scheduling/overrides/{id}.
func (h *OverrideHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	o, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "override not found"))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// GetByPair handles GET /admin/scheduling/overrides?clientId=&technicianId=.
func (h *OverrideHandler) GetByPair(w http.ResponseWriter, r *http.Request) {
	clientID, err1 := strconv.ParseInt(r.URL.Query().Get("clientId"), 10, 64)
	technicianID, err2 := strconv.ParseInt(r.URL.Query().Get("technicianId"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_query", "clientId and technicianId query params are required"))
		return
	}
	o, err := h.store.GetByPair(r.Context(), clientID, technicianID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to fetch override"))
		return
	}
	if o == nil {
		writeJSON(w, http.StatusNotFound, errorBody("not_found", "no override for this pair"))
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeleteByID handles DELETE /admin/scheduling/overrides/{id}.
func (h *OverrideHandler) DeleteByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	if err := h.store.DeleteByID(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "override not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to delete override"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteByPair handles DELETE /admin/scheduling/overrides?clientId=&technicianId=.
func (h *OverrideHandler) DeleteByPair(w http.ResponseWriter, r *http.Request) {
	clientID, err1 := strconv.ParseInt(r.URL.Query().Get("clientId"), 10, 64)
	technicianID, err2 := strconv.ParseInt(r.URL.Query().Get("technicianId"), 10, 64)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_query", "clientId and technicianId query params are required"))
		return
	}
	if err := h.store.DeleteByPair(r.Context(), clientID, technicianID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "no override for this pair"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to delete override"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
