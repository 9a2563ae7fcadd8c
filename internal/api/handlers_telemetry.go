package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/savegress/fleetsense/internal/telemetry"
)

func (s *Server) ingestTelemetry(w http.ResponseWriter, r *http.Request) {
	var req telemetry.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.VIN = chi.URLParam(r, "vin")

	sample, err := s.telemetry.Ingest(r.Context(), &req)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Telemetry data received successfully",
		"telemetry_id": sample.ID,
	})
}

type bulkIngestRequest struct {
	TelemetryData []*telemetry.IngestRequest `json:"telemetry_data"`
}

func (s *Server) ingestTelemetryBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkIngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TelemetryData == nil {
		respondError(w, http.StatusBadRequest, "telemetry_data must be an array")
		return
	}

	results := s.telemetry.IngestBatch(r.Context(), req.TelemetryData)

	successful := 0
	for _, result := range results {
		if result.Error == "" {
			successful++
		}
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":    "Bulk telemetry processing completed",
		"successful": successful,
		"failed":     len(results) - successful,
		"results":    results,
	})
}

func (s *Server) telemetryHistory(w http.ResponseWriter, r *http.Request) {
	samples, err := s.telemetry.History(r.Context(), chi.URLParam(r, "vin"), queryInt(r, "limit", 100))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, samples)
}

func (s *Server) latestTelemetry(w http.ResponseWriter, r *http.Request) {
	sample, err := s.telemetry.Latest(r.Context(), chi.URLParam(r, "vin"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sample)
}

func (s *Server) fleetTelemetry(w http.ResponseWriter, r *http.Request) {
	samples, err := s.telemetry.FleetHistory(r.Context(), chi.URLParam(r, "fleetID"), queryInt(r, "limit", 1000))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, samples)
}
