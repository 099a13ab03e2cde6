package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shiva/geomatch/internal/model"
	"github.com/shiva/geomatch/internal/repository"
	"github.com/shiva/geomatch/internal/travel"
	"github.com/shiva/geomatch/pkg/geo"
)

// LocationHandler serves the /location endpoints (§6.1): manual pin
// updates and geocode lookups.
type LocationHandler struct {
	clientRepo  *repository.ClientRepository
	techRepo    *repository.TechnicianRepository
	travelCache *travel.Cache
	logger      *zap.Logger
}

// NewLocationHandler constructs a LocationHandler.
func NewLocationHandler(clientRepo *repository.ClientRepository, techRepo *repository.TechnicianRepository, travelCache *travel.Cache, logger *zap.Logger) *LocationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationHandler{clientRepo: clientRepo, techRepo: techRepo, travelCache: travelCache, logger: logger}
}

type locationUpdateRequest struct {
	EntityType model.EntityType `json:"entityType"`
	EntityID   int64            `json:"entityId"`
	Lat        float64          `json:"lat"`
	Lng        float64          `json:"lng"`
	Source     string           `json:"source,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// UpdateLocation handles POST /location/update — a manual pin correction.
func (h *LocationHandler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_body", err.Error()))
		return
	}

	if req.Lat < -90 || req.Lat > 90 || req.Lng < -180 || req.Lng > 180 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_coordinates", "lat must be in [-90,90], lng in [-180,180]"))
		return
	}
	p := geo.Point{Lat: req.Lat, Lng: req.Lng}
	if !geo.IsPlausibleContinentalUS(p) {
		writeJSON(w, http.StatusBadRequest, errorBody("implausible_location", "coordinates fall outside the continental US bounding box"))
		return
	}

	g := &model.Geocode{
		Lat:               req.Lat,
		Lng:               req.Lng,
		Precision:         model.PrecisionRooftop,
		Confidence:        1.0,
		Source:            model.SourceManualPin,
		AddressUsed:       req.Notes,
		UpdatedAt:         time.Now(),
		NeedsVerification: false,
	}

	var priorHash string
	switch req.EntityType {
	case model.EntityClient:
		c, err := h.clientRepo.GetByID(r.Context(), req.EntityID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "client not found"))
			return
		}
		if pp, ok := geo.FromGeocode(c.Geocode); ok {
			priorHash = geo.RoundedHash(pp)
		}
		if err := h.clientRepo.UpdateGeocode(r.Context(), req.EntityID, g); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to update client geocode"))
			return
		}
	case model.EntityTechnician:
		t, err := h.techRepo.GetByID(r.Context(), req.EntityID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "technician not found"))
			return
		}
		if pp, ok := geo.FromGeocode(t.Geocode); ok {
			priorHash = geo.RoundedHash(pp)
		}
		if err := h.techRepo.UpdateGeocode(r.Context(), req.EntityID, g); err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody("internal_error", "failed to update technician geocode"))
			return
		}
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_entity_type", "entityType must be client or technician"))
		return
	}

	if priorHash != "" {
		if err := h.travelCache.InvalidateEntity(r.Context(), req.EntityType, priorHash); err != nil {
			h.logger.Warn("location: travel cache invalidation failed", zap.Error(err))
		}
	}
	if err := h.travelCache.InvalidateEntity(r.Context(), req.EntityType, geo.RoundedHash(p)); err != nil {
		h.logger.Warn("location: travel cache invalidation failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, g)
}

// GetLocation handles GET /location/{entityType}/{entityId}.
func (h *LocationHandler) GetLocation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	entityID, err := strconv.ParseInt(vars["entityId"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_entity_id", "entityId must be an integer"))
		return
	}

	switch model.EntityType(vars["entityType"]) {
	case model.EntityClient:
		c, err := h.clientRepo.GetByID(r.Context(), entityID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "client not found"))
			return
		}
		writeJSON(w, http.StatusOK, c.Geocode)
	case model.EntityTechnician:
		t, err := h.techRepo.GetByID(r.Context(), entityID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errorBody("not_found", "technician not found"))
			return
		}
		writeJSON(w, http.StatusOK, t.Geocode)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("invalid_entity_type", "entityType must be client or technician"))
	}
}
