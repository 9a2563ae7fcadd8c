package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

func (s *Server) allFleetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleets, err := s.store.ListFleets(ctx)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(fleets))
	for _, fleet := range fleets {
		snapshot, err := s.store.LatestSnapshot(ctx, fleet.ID)
		if err != nil && !errors.Is(err, storage.ErrNoSnapshot) {
			s.respondStoreError(w, err)
			return
		}
		entry := map[string]interface{}{
			"fleet_id":   fleet.ID,
			"fleet_name": fleet.Name,
			"fleet_type": fleet.Type,
			"analytics":  snapshot,
		}
		if snapshot != nil {
			entry["last_updated"] = snapshot.CreatedAt
		}
		out = append(out, entry)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) fleetAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := chi.URLParam(r, "fleetID")

	fleet, err := s.store.GetFleet(ctx, fleetID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	var snapshot *models.FleetAnalyticsSnapshot
	if r.URL.Query().Get("refresh") == "true" {
		snapshot, err = s.aggregator.RefreshFleet(ctx, fleetID)
	} else {
		maxStaleness := time.Duration(queryInt(r, "max_staleness_ms", 0)) * time.Millisecond
		snapshot, err = s.aggregator.GetFleetAnalytics(ctx, fleetID, maxStaleness)
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fleet_id":     fleetID,
		"fleet_name":   fleet.Name,
		"analytics":    snapshot,
		"last_updated": snapshot.CreatedAt,
	})
}

func (s *Server) fleetVehicleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := chi.URLParam(r, "fleetID")

	if _, err := s.store.GetFleet(ctx, fleetID); err != nil {
		s.respondStoreError(w, err)
		return
	}

	vehicles, err := s.store.ListVehiclesByFleet(ctx, fleetID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	activeVehicles, err := s.store.ListActiveVehicles(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	activeIDs := make(map[string]bool, len(activeVehicles))
	for _, vehicle := range activeVehicles {
		activeIDs[vehicle.ID] = true
	}

	statuses := make([]map[string]interface{}, 0, len(vehicles))
	active := 0
	for _, vehicle := range vehicles {
		latest, err := s.store.LatestTelemetry(ctx, vehicle.ID)
		if err != nil && !errors.Is(err, storage.ErrNoTelemetry) {
			s.respondStoreError(w, err)
			return
		}

		isActive := activeIDs[vehicle.ID]
		if isActive {
			active++
		}
		status := map[string]interface{}{
			"vin":                 vehicle.VIN,
			"manufacturer":        vehicle.Manufacturer,
			"model":               vehicle.Model,
			"registration_status": vehicle.RegistrationStatus,
			"is_active":           isActive,
			"latest_telemetry":    latest,
		}
		if latest != nil {
			status["last_seen"] = latest.Timestamp
		}
		statuses = append(statuses, status)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"fleet_id":          fleetID,
		"total_vehicles":    len(vehicles),
		"active_vehicles":   active,
		"inactive_vehicles": len(vehicles) - active,
		"vehicles":          statuses,
	})
}

func (s *Server) refreshAnalytics(w http.ResponseWriter, r *http.Request) {
	if err := s.aggregator.RunOnce(r.Context()); err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Analytics refresh completed",
	})
}
