package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/fleetsense/pkg/models"
)

func (s *Server) alertHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicle, err := s.store.GetVehicleByVIN(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	alerts, err := s.store.ListAlertsByVehicle(ctx, vehicle.ID, queryInt(r, "limit", 100))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) latestAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicle, err := s.store.GetVehicleByVIN(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	alert, err := s.store.LatestAlert(ctx, vehicle.ID)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

// alertSummary groups a vehicle's alerts by violation kind and by
// severity band (low < 2 <= medium < 4 <= high).
func (s *Server) alertSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vehicle, err := s.store.GetVehicleByVIN(ctx, chi.URLParam(r, "vin"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	alerts, err := s.store.ListAlertsByVehicle(ctx, vehicle.ID, 1000)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	summary := map[string][]*models.Alert{
		"high_speed": {},
		"low_fuel":   {},
		"high":       {},
		"medium":     {},
		"low":        {},
	}
	for _, alert := range alerts {
		switch alert.ViolationType {
		case models.ViolationOverspeeding:
			summary["high_speed"] = append(summary["high_speed"], alert)
		case models.ViolationLowFuel:
			summary["low_fuel"] = append(summary["low_fuel"], alert)
		}

		switch {
		case alert.Severity >= 4:
			summary["high"] = append(summary["high"], alert)
		case alert.Severity >= 2:
			summary["medium"] = append(summary["medium"], alert)
		default:
			summary["low"] = append(summary["low"], alert)
		}
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) fleetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := chi.URLParam(r, "fleetID")
	if _, err := s.store.GetFleet(ctx, fleetID); err != nil {
		s.respondStoreError(w, err)
		return
	}

	alerts, err := s.store.ListAlertsByFleet(ctx, fleetID, queryInt(r, "limit", 1000))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (s *Server) fleetAlertStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fleetID := chi.URLParam(r, "fleetID")
	if _, err := s.store.GetFleet(ctx, fleetID); err != nil {
		s.respondStoreError(w, err)
		return
	}

	hours := queryInt(r, "hours", 24)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	byType, err := s.store.CountAlertsByType(ctx, fleetID, since)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	bySeverity, err := s.store.CountAlertsBySeverity(ctx, fleetID, since)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	total := 0
	for _, c := range byType {
		total += c.Count
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"time_period_hours":  hours,
		"alerts_by_type":     byType,
		"alerts_by_severity": bySeverity,
		"total_alerts":       total,
	})
}
