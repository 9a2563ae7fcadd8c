package alerts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

func testConfig() config.AlertsConfig {
	return config.AlertsConfig{
		SpeedThresholds: []float64{80, 100, 120},
		FuelThresholds:  []float64{20, 10, 5},
		DedupWindow:     5 * time.Minute,
	}
}

func newTestEngine(t *testing.T) (*Engine, *storage.MemoryStore, *models.Vehicle) {
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

	engine := NewEngine(store, testConfig(), zerolog.Nop())
	return engine, store, vehicle
}

func sampleWith(vehicleID string, speed, fuel float64) *models.TelemetrySample {
	return &models.TelemetrySample{
		VehicleID:    vehicleID,
		Speed:        speed,
		EngineStatus: models.EngineOn,
		FuelLevel:    fuel,
		Odometer:     15000,
		Timestamp:    time.Now().UTC(),
	}
}

func TestFirstCrossedTier(t *testing.T) {
	speed := []float64{80, 100, 120}
	if tier := firstCrossedTier(75, speed, above); tier != -1 {
		t.Errorf("75 km/h crosses no tier, got %d", tier)
	}
	if tier := firstCrossedTier(95, speed, above); tier != 0 {
		t.Errorf("95 km/h must match tier 0 first, got %d", tier)
	}
	if tier := firstCrossedTier(80, speed, above); tier != -1 {
		t.Errorf("comparison is strict, 80 km/h crosses no tier, got %d", tier)
	}

	fuel := []float64{20, 10, 5}
	if tier := firstCrossedTier(12, fuel, below); tier != 0 {
		t.Errorf("fuel 12%% must match tier 0 first, got %d", tier)
	}
	if tier := firstCrossedTier(50, fuel, below); tier != -1 {
		t.Errorf("fuel 50%% crosses no tier, got %d", tier)
	}
}

func TestEvaluateSampleCreatesSpeedAlert(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 95, 80))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	alert := alerts[0]
	if alert.ViolationType != models.ViolationOverspeeding {
		t.Errorf("expected Overspeeding, got %s", alert.ViolationType)
	}
	if alert.Severity != 1 {
		t.Errorf("tier 0 contributes severity 1, got %d", alert.Severity)
	}
	if !strings.Contains(alert.Description, "80 km/h") {
		t.Errorf("description must cite the crossed threshold, got %q", alert.Description)
	}
	if !strings.Contains(alert.Description, "95") {
		t.Errorf("description must cite the observed value, got %q", alert.Description)
	}
	if alert.AlertID == "" {
		t.Errorf("alert must carry an external identifier")
	}
	if len(alert.TelemetrySnapshot) == 0 {
		t.Errorf("alert must snapshot the triggering sample")
	}
}

func TestEvaluateSampleLowFuelFirstMatch(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	// 12 is below 20 but not below 10: only tier 0 matches.
	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 50, 12))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].ViolationType != models.ViolationLowFuel {
		t.Errorf("expected Low Fuel, got %s", alerts[0].ViolationType)
	}
	if alerts[0].Severity != 1 {
		t.Errorf("expected severity 1, got %d", alerts[0].Severity)
	}
}

func TestEvaluateSampleBothSignals(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 95, 12))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("one sample crossing both signals must produce 2 alerts, got %d", len(alerts))
	}
	types := map[models.ViolationType]bool{}
	for _, alert := range alerts {
		types[alert.ViolationType] = true
	}
	if !types[models.ViolationOverspeeding] || !types[models.ViolationLowFuel] {
		t.Errorf("expected one Overspeeding and one Low Fuel alert, got %v", types)
	}
}

func TestEvaluateSampleNoTierCrossed(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 60, 75))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("expected no alerts, got %d", len(alerts))
	}
}

func TestEvaluateSampleEscalatesWithinWindow(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 95, 80))
	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 110, 80))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("repeat violation within window must escalate, not duplicate: got %d alerts", len(alerts))
	}
	// severity_before(1) + tier contribution(1)
	if alerts[0].Severity != 2 {
		t.Errorf("expected escalated severity 2, got %d", alerts[0].Severity)
	}
	if !alerts[0].UpdatedAt.After(alerts[0].CreatedAt) {
		t.Errorf("escalation must refresh updated_at")
	}
}

func TestEvaluateSampleCreatesOutsideWindow(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	// Existing alert older than the dedup window must not absorb the new one.
	old := &models.Alert{
		AlertID:       "a-old",
		VehicleID:     vehicle.ID,
		ViolationType: models.ViolationOverspeeding,
		Severity:      1,
		Timestamp:     time.Now().UTC().Add(-10 * time.Minute),
	}
	if err := store.InsertAlert(ctx, old); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 95, 80))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected a new alert outside the window, got %d total", len(alerts))
	}
	if old.Severity != 1 {
		t.Errorf("old alert must be untouched")
	}
}

func TestDedupIsPerViolationKind(t *testing.T) {
	engine, store, vehicle := newTestEngine(t)
	ctx := context.Background()

	// A recent speed alert must not dedupe a fuel violation.
	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 95, 80))
	engine.EvaluateSample(ctx, vehicle, sampleWith(vehicle.ID, 60, 12))

	alerts, err := store.ListAlertsByVehicle(ctx, vehicle.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsByVehicle: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("different violation kinds never dedupe, expected 2 alerts, got %d", len(alerts))
	}
}
