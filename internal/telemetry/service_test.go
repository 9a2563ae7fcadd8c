package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/alerts"
	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

func f(v float64) *float64 { return &v }

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *models.Vehicle) {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	fleet := &models.Fleet{Name: "Test Fleet", Type: models.FleetCorporate}
	if err := store.CreateFleet(ctx, fleet); err != nil {
		t.Fatalf("CreateFleet: %v", err)
	}
	vehicle := &models.Vehicle{
		VIN:                "VIN001",
		Manufacturer:       "Tesla",
		Model:              "Model 3",
		FleetID:            fleet.ID,
		RegistrationStatus: models.RegistrationActive,
	}
	if err := store.CreateVehicle(ctx, vehicle); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}

	engine := alerts.NewEngine(store, config.AlertsConfig{
		SpeedThresholds: []float64{80, 100, 120},
		FuelThresholds:  []float64{20, 10, 5},
		DedupWindow:     5 * time.Minute,
	}, zerolog.Nop())

	return NewService(store, engine, zerolog.Nop()), store, vehicle
}

func validRequest(vin string) *IngestRequest {
	return &IngestRequest{
		VIN:          vin,
		Latitude:     f(34.5),
		Longitude:    f(-118.2),
		Speed:        f(60),
		EngineStatus: models.EngineOn,
		FuelLevel:    f(55),
		Odometer:     f(30000),
	}
}

func TestIngestStoresSample(t *testing.T) {
	service, store, vehicle := newTestService(t)
	ctx := context.Background()

	sample, err := service.Ingest(ctx, validRequest(vehicle.VIN))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if sample.ID == "" {
		t.Errorf("stored sample must have an id")
	}
	if sample.Timestamp.IsZero() {
		t.Errorf("missing timestamp must default to ingestion time")
	}

	latest, err := store.LatestTelemetry(ctx, vehicle.ID)
	if err != nil {
		t.Fatalf("LatestTelemetry: %v", err)
	}
	if latest.ID != sample.ID {
		t.Errorf("expected stored sample %s, got %s", sample.ID, latest.ID)
	}
}

func TestIngestValidation(t *testing.T) {
	service, store, vehicle := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*IngestRequest)
	}{
		{"missing latitude", func(r *IngestRequest) { r.Latitude = nil }},
		{"missing longitude", func(r *IngestRequest) { r.Longitude = nil }},
		{"missing speed", func(r *IngestRequest) { r.Speed = nil }},
		{"missing fuel_level", func(r *IngestRequest) { r.FuelLevel = nil }},
		{"missing odometer", func(r *IngestRequest) { r.Odometer = nil }},
		{"missing engine_status", func(r *IngestRequest) { r.EngineStatus = "" }},
		{"bad engine_status", func(r *IngestRequest) { r.EngineStatus = "Running" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest(vehicle.VIN)
			tc.mutate(req)

			_, err := service.Ingest(ctx, req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	// No sample may have been stored by any rejected request.
	if _, err := store.LatestTelemetry(ctx, vehicle.ID); !errors.Is(err, storage.ErrNoTelemetry) {
		t.Errorf("rejected payloads must leave no telemetry, got %v", err)
	}
}

func TestIngestUnknownVehicle(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Ingest(context.Background(), validRequest("NOPE"))
	if !errors.Is(err, storage.ErrVehicleNotFound) {
		t.Errorf("expected ErrVehicleNotFound, got %v", err)
	}
}

func TestIngestTriggersAlerts(t *testing.T) {
	service, store, vehicle := newTestService(t)
	ctx := context.Background()

	req := validRequest(vehicle.VIN)
	req.Speed = f(95)

	if _, err := service.Ingest(ctx, req); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert after overspeeding sample, got %d", len(alerts))
	}
	if alerts[0].ViolationType != models.ViolationOverspeeding {
		t.Errorf("expected Overspeeding, got %s", alerts[0].ViolationType)
	}
}

func TestIngestBatchItemIsolation(t *testing.T) {
	service, store, vehicle := newTestService(t)
	ctx := context.Background()

	bad := validRequest("UNKNOWN")
	invalid := validRequest(vehicle.VIN)
	invalid.Speed = nil

	results := service.IngestBatch(ctx, []*IngestRequest{
		validRequest(vehicle.VIN),
		bad,
		invalid,
		validRequest(vehicle.VIN),
	})

	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if results[0].Error != "" || results[3].Error != "" {
		t.Errorf("valid items must succeed: %+v", results)
	}
	if results[1].Error == "" || results[2].Error == "" {
		t.Errorf("bad items must report errors: %+v", results)
	}

	samples, err := store.ListTelemetryByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListTelemetryByVehicle: %v", err)
	}
	if len(samples) != 2 {
		t.Errorf("expected 2 stored samples, got %d", len(samples))
	}
}

func TestHistoryAndLatest(t *testing.T) {
	service, _, vehicle := newTestService(t)
	ctx := context.Background()

	first := validRequest(vehicle.VIN)
	first.Timestamp = time.Now().UTC().Add(-time.Hour)
	second := validRequest(vehicle.VIN)
	second.Odometer = f(30100)

	for _, req := range []*IngestRequest{first, second} {
		if _, err := service.Ingest(ctx, req); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	history, err := service.History(ctx, vehicle.VIN, 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(history))
	}

	latest, err := service.Latest(ctx, vehicle.VIN)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Odometer != 30100 {
		t.Errorf("expected newest sample first, got odometer %v", latest.Odometer)
	}
}
