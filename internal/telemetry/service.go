// Package telemetry accepts vehicle telemetry samples, persists them and
// hands them to the alert engine. Alert derivation is a separate failure
// domain: a sample that was stored is always acknowledged, even when
// evaluating it for alerts fails.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/alerts"
	"github.com/savegress/fleetsense/internal/metrics"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

// ValidationError reports a malformed ingestion payload
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid telemetry payload: field %q %s", e.Field, e.Reason)
}

// IngestRequest is one telemetry reading addressed by VIN. Numeric fields
// are pointers so a missing field is distinguishable from a zero reading.
type IngestRequest struct {
	VIN             string              `json:"vin"`
	Latitude        *float64            `json:"latitude"`
	Longitude       *float64            `json:"longitude"`
	Speed           *float64            `json:"speed"`
	EngineStatus    models.EngineStatus `json:"engine_status"`
	FuelLevel       *float64            `json:"fuel_level"`
	Odometer        *float64            `json:"odometer"`
	DiagnosticCodes string              `json:"diagnostic_codes,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Validate checks the required fields. VIN presence is checked by the
// caller because the bulk endpoint reports it per item.
func (r *IngestRequest) Validate() error {
	required := []struct {
		name  string
		value *float64
	}{
		{"latitude", r.Latitude},
		{"longitude", r.Longitude},
		{"speed", r.Speed},
		{"fuel_level", r.FuelLevel},
		{"odometer", r.Odometer},
	}
	for _, f := range required {
		if f.value == nil {
			return &ValidationError{Field: f.name, Reason: "is required"}
		}
	}
	if r.EngineStatus == "" {
		return &ValidationError{Field: "engine_status", Reason: "is required"}
	}
	if !r.EngineStatus.Valid() {
		return &ValidationError{Field: "engine_status", Reason: "must be On, Off or Idle"}
	}
	return nil
}

// BatchItemResult is the per-item outcome of a bulk ingestion call
type BatchItemResult struct {
	VIN         string `json:"vin"`
	TelemetryID string `json:"telemetry_id,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Service is the ingestion entry point
type Service struct {
	store  storage.Store
	engine *alerts.Engine
	log    zerolog.Logger
}

// NewService creates the ingestion service
func NewService(store storage.Store, engine *alerts.Engine, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		engine: engine,
		log:    log.With().Str("component", "telemetry").Logger(),
	}
}

// Ingest validates, stores and evaluates one sample. Validation and
// unknown-vehicle errors are returned with no side effects; once the
// sample is stored, alert evaluation failures are swallowed by the engine.
func (s *Service) Ingest(ctx context.Context, req *IngestRequest) (*models.TelemetrySample, error) {
	if err := req.Validate(); err != nil {
		metrics.TelemetryRejected.Add(1)
		return nil, err
	}

	vehicle, err := s.store.GetVehicleByVIN(ctx, req.VIN)
	if err != nil {
		metrics.TelemetryRejected.Add(1)
		return nil, err
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	sample := &models.TelemetrySample{
		VehicleID:       vehicle.ID,
		Latitude:        *req.Latitude,
		Longitude:       *req.Longitude,
		Speed:           *req.Speed,
		EngineStatus:    req.EngineStatus,
		FuelLevel:       *req.FuelLevel,
		Odometer:        *req.Odometer,
		DiagnosticCodes: req.DiagnosticCodes,
		Timestamp:       timestamp,
	}
	if err := s.store.InsertTelemetry(ctx, sample); err != nil {
		metrics.TelemetryRejected.Add(1)
		return nil, fmt.Errorf("store telemetry: %w", err)
	}
	metrics.TelemetryIngested.Add(1)

	s.engine.EvaluateSample(ctx, vehicle, sample)

	return sample, nil
}

// IngestBatch processes items independently: one bad reading never
// blocks the rest of the batch.
func (s *Service) IngestBatch(ctx context.Context, reqs []*IngestRequest) []BatchItemResult {
	results := make([]BatchItemResult, 0, len(reqs))
	for _, req := range reqs {
		sample, err := s.Ingest(ctx, req)
		if err != nil {
			results = append(results, BatchItemResult{VIN: req.VIN, Error: err.Error()})
			continue
		}
		results = append(results, BatchItemResult{VIN: req.VIN, TelemetryID: sample.ID})
	}
	return results
}

// History returns up to limit samples for a vehicle, newest first
func (s *Service) History(ctx context.Context, vin string, limit int) ([]*models.TelemetrySample, error) {
	vehicle, err := s.store.GetVehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListTelemetryByVehicle(ctx, vehicle.ID, limit)
}

// Latest returns the most recent sample for a vehicle
func (s *Service) Latest(ctx context.Context, vin string) (*models.TelemetrySample, error) {
	vehicle, err := s.store.GetVehicleByVIN(ctx, vin)
	if err != nil {
		return nil, err
	}
	return s.store.LatestTelemetry(ctx, vehicle.ID)
}

// FleetHistory returns up to limit samples across a fleet, newest first
func (s *Service) FleetHistory(ctx context.Context, fleetID string, limit int) ([]*models.TelemetrySample, error) {
	if _, err := s.store.GetFleet(ctx, fleetID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 1000
	}
	return s.store.ListTelemetryByFleet(ctx, fleetID, limit)
}
