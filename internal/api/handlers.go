package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/internal/telemetry"
	"github.com/savegress/fleetsense/pkg/models"
)

// Health check

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "fleetsense",
		"time":    time.Now().UTC(),
	})
}

// Fleet handlers

func (s *Server) createFleet(w http.ResponseWriter, r *http.Request) {
	var fleet models.Fleet
	if err := json.NewDecoder(r.Body).Decode(&fleet); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if fleet.Name == "" {
		respondError(w, http.StatusBadRequest, "Missing required field: name")
		return
	}
	if fleet.Type == "" {
		fleet.Type = models.FleetCorporate
	}

	if err := s.store.CreateFleet(r.Context(), &fleet); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, fleet)
}

func (s *Server) listFleets(w http.ResponseWriter, r *http.Request) {
	fleets, err := s.store.ListFleets(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fleets)
}

// Vehicle handlers

type registerVehicleRequest struct {
	Manufacturer       string                    `json:"manufacturer"`
	Model              string                    `json:"model"`
	FleetID            string                    `json:"fleet_id"`
	Owner              string                    `json:"owner"`
	RegistrationStatus models.RegistrationStatus `json:"registration_status"`
}

func (s *Server) registerVehicle(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")

	var req registerVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Manufacturer == "" || req.Model == "" || req.FleetID == "" {
		respondError(w, http.StatusBadRequest, "Missing required fields: manufacturer, model, fleet_id")
		return
	}
	if req.RegistrationStatus == "" {
		req.RegistrationStatus = models.RegistrationActive
	}

	ctx := r.Context()

	// The fleet is created on the fly when the referenced one is unknown.
	if _, err := s.store.GetFleet(ctx, req.FleetID); errors.Is(err, storage.ErrFleetNotFound) {
		fleet := &models.Fleet{
			ID:   req.FleetID,
			Name: "Fleet " + req.FleetID,
			Type: models.FleetCorporate,
		}
		if err := s.store.CreateFleet(ctx, fleet); err != nil {
			s.respondStoreError(w, err)
			return
		}
	} else if err != nil {
		s.respondStoreError(w, err)
		return
	}

	vehicle := &models.Vehicle{
		VIN:                vin,
		Manufacturer:       req.Manufacturer,
		Model:              req.Model,
		FleetID:            req.FleetID,
		Owner:              req.Owner,
		RegistrationStatus: req.RegistrationStatus,
	}
	if err := s.store.CreateVehicle(ctx, vehicle); err != nil {
		if errors.Is(err, storage.ErrDuplicateVIN) {
			respondError(w, http.StatusBadRequest, "Vehicle with this VIN already exists")
			return
		}
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, vehicle)
}

func (s *Server) listVehicles(w http.ResponseWriter, r *http.Request) {
	vehicles, err := s.store.ListVehicles(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, vehicles)
}

func (s *Server) getVehicle(w http.ResponseWriter, r *http.Request) {
	vin := chi.URLParam(r, "vin")
	ctx := r.Context()

	vehicle, err := s.store.GetVehicleByVIN(ctx, vin)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	latest, err := s.store.LatestTelemetry(ctx, vehicle.ID)
	if err != nil && !errors.Is(err, storage.ErrNoTelemetry) {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"vehicle":          vehicle,
		"latest_telemetry": latest,
	})
}

// Shared helpers

func queryInt(r *http.Request, name string, fallback int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	var verr *telemetry.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, storage.ErrVehicleNotFound):
		respondError(w, http.StatusNotFound, "Vehicle not found")
	case errors.Is(err, storage.ErrFleetNotFound):
		respondError(w, http.StatusNotFound, "Fleet not found")
	case errors.Is(err, storage.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "No alerts found for this vehicle")
	case errors.Is(err, storage.ErrNoTelemetry):
		respondError(w, http.StatusNotFound, "No telemetry data found for this vehicle")
	case errors.Is(err, storage.ErrNoSnapshot):
		respondError(w, http.StatusNotFound, "No analytics available for this fleet")
	default:
		s.log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
