package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/simulation"
)

// SimulationHandler serves /admin/simulation and /admin/rbts (§6.1).
type SimulationHandler struct {
	svc    *simulation.Service
	logger *zap.Logger
}

// NewSimulationHandler constructs a SimulationHandler.
func NewSimulationHandler(svc *simulation.Service, logger *zap.Logger) *SimulationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulationHandler{svc: svc, logger: logger}
}

type addClientRequest struct {
	Name        string `json:"name"`
	AddressLine string `json:"addressLine"`
	City        string `json:"city"`
	State       string `json:"state"`
	Zip         string `json:"zip"`
	Notes       string `json:"notes,omitempty"`
}

// AddClient handles POST /admin/simulation/add-client.
func (h *SimulationHandler) AddClient(w http.ResponseWriter, r *http.Request) {
	var req addClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}
	c, err := h.svc.AddClient(r.Context(), req.Name, req.AddressLine, req.City, req.State, req.Zip, req.Notes)
	if err != nil {
		h.logger.Error("add-client failed", zap.Error(err))
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("geocode_failed", "could not geocode the supplied address"))
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type runSimulationRequest struct {
	SimulationRunID int64 `json:"simulationRunId"`
}

// RunSimulation handles POST /admin/simulation/run.
func (h *SimulationHandler) RunSimulation(w http.ResponseWriter, r *http.Request) {
	var req runSimulationRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // simulationRunId is optional; zero value groups proposals under run 0

	proposals, err := h.svc.RunSimulation(r.Context(), req.SimulationRunID)
	if err != nil {
		h.logger.Error("run-simulation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "simulation run failed"))
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

// ListProposals handles GET /admin/simulation/proposals?status=.
func (h *SimulationHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	status := model.ProposalStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.Proposed
	}
	proposals, err := h.svc.ListProposals(r.Context(), status)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to list proposals"))
		return
	}
	writeJSON(w, http.StatusOK, proposals)
}

func parseIDVar(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// Approve handles POST /admin/simulation/approve/{id}.
func (h *SimulationHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDVar(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	pairing, err := h.svc.ApproveProposal(r.Context(), id)
	if err != nil {
		h.writeSimulationConflict(w, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, pairing)
}

// Reject handles POST /admin/simulation/reject/{id}.
func (h *SimulationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDVar(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	if err := h.svc.RejectProposal(r.Context(), id); err != nil {
		h.writeSimulationConflict(w, "reject", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Defer handles POST /admin/simulation/defer/{id}.
func (h *SimulationHandler) Defer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDVar(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	if err := h.svc.DeferProposal(r.Context(), id); err != nil {
		h.writeSimulationConflict(w, "defer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReopenTechnician handles POST /admin/rbts/{id}/reopen.
func (h *SimulationHandler) ReopenTechnician(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDVar(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_id", "id must be an integer"))
		return
	}
	if err := h.svc.ReopenTechnician(r.Context(), id); err != nil {
		h.writeSimulationConflict(w, "reopen", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeSimulationConflict maps a classified simulation.ConflictError to a
// 409 with a distinguishing message (§6.1: "returns 409 with a
// distinguishing message on invariant failure"), or 500 otherwise.
func (h *SimulationHandler) writeSimulationConflict(w http.ResponseWriter, op string, err error) {
	var ce *simulation.ConflictError
	if errors.As(err, &ce) {
		writeJSON(w, http.StatusConflict, errorBody(string(ce.Reason), ce.Error()))
		return
	}
	h.logger.Error("simulation operation failed", zap.String("op", op), zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "operation failed"))
}
