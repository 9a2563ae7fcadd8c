package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/savegress/fleetsense/pkg/models"
)

func newTestStore(t *testing.T) (*MemoryStore, *models.Fleet) {
	t.Helper()
	store := NewMemoryStore()
	fleet := &models.Fleet{Name: "Test Fleet", Type: models.FleetCorporate}
	if err := store.CreateFleet(context.Background(), fleet); err != nil {
		t.Fatalf("CreateFleet: %v", err)
	}
	return store, fleet
}

func addVehicle(t *testing.T, store *MemoryStore, fleetID, vin string, status models.RegistrationStatus) *models.Vehicle {
	t.Helper()
	vehicle := &models.Vehicle{
		VIN:                vin,
		Manufacturer:       "Tesla",
		Model:              "Model 3",
		FleetID:            fleetID,
		RegistrationStatus: status,
	}
	if err := store.CreateVehicle(context.Background(), vehicle); err != nil {
		t.Fatalf("CreateVehicle(%s): %v", vin, err)
	}
	return vehicle
}

func addSample(t *testing.T, store *MemoryStore, vehicleID string, ts time.Time, fuel, odometer float64) {
	t.Helper()
	err := store.InsertTelemetry(context.Background(), &models.TelemetrySample{
		VehicleID:    vehicleID,
		Speed:        60,
		EngineStatus: models.EngineOn,
		FuelLevel:    fuel,
		Odometer:     odometer,
		Timestamp:    ts,
	})
	if err != nil {
		t.Fatalf("InsertTelemetry: %v", err)
	}
}

func TestCreateVehicleDuplicateVIN(t *testing.T) {
	store, fleet := newTestStore(t)
	addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)

	err := store.CreateVehicle(context.Background(), &models.Vehicle{
		VIN:                "VIN001",
		Manufacturer:       "Ford",
		Model:              "F-150",
		FleetID:            fleet.ID,
		RegistrationStatus: models.RegistrationActive,
	})
	if !errors.Is(err, ErrDuplicateVIN) {
		t.Errorf("expected ErrDuplicateVIN, got %v", err)
	}
}

func TestListActiveVehicles(t *testing.T) {
	store, fleet := newTestStore(t)
	now := time.Now()
	since := now.Add(-24 * time.Hour)

	active := addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)
	stale := addVehicle(t, store, fleet.ID, "VIN002", models.RegistrationActive)
	maintenance := addVehicle(t, store, fleet.ID, "VIN003", models.RegistrationMaintenance)

	addSample(t, store, active.ID, now.Add(-1*time.Hour), 50, 1000)
	addSample(t, store, stale.ID, now.Add(-48*time.Hour), 50, 1000)
	// Recent telemetry but not registered Active: must not count.
	addSample(t, store, maintenance.ID, now.Add(-1*time.Hour), 50, 1000)

	got, err := store.ListActiveVehicles(context.Background(), since)
	if err != nil {
		t.Fatalf("ListActiveVehicles: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 active vehicle, got %d", len(got))
	}
	if got[0].ID != active.ID {
		t.Errorf("expected vehicle %s, got %s", active.ID, got[0].ID)
	}
}

func TestOdometerRanges(t *testing.T) {
	store, fleet := newTestStore(t)
	now := time.Now()
	since := now.Add(-24 * time.Hour)

	driven := addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)
	silent := addVehicle(t, store, fleet.ID, "VIN002", models.RegistrationActive)

	// Max comes from the full history, min only from the window.
	addSample(t, store, driven.ID, now.Add(-72*time.Hour), 80, 14000)
	addSample(t, store, driven.ID, now.Add(-20*time.Hour), 60, 15000)
	addSample(t, store, driven.ID, now.Add(-1*time.Hour), 40, 16200)
	// Only pre-window readings: vehicle must be omitted entirely.
	addSample(t, store, silent.ID, now.Add(-48*time.Hour), 70, 9000)

	ranges, err := store.OdometerRanges(context.Background(), fleet.ID, since)
	if err != nil {
		t.Fatalf("OdometerRanges: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("expected 1 range, got %d", len(ranges))
	}
	r := ranges[0]
	if r.VehicleID != driven.ID {
		t.Errorf("expected vehicle %s, got %s", driven.ID, r.VehicleID)
	}
	if r.Max != 16200 {
		t.Errorf("expected max 16200, got %v", r.Max)
	}
	if r.WindowMin != 15000 {
		t.Errorf("expected window min 15000, got %v", r.WindowMin)
	}
}

func TestAverageFuelLevel(t *testing.T) {
	store, fleet := newTestStore(t)
	now := time.Now()
	since := now.Add(-24 * time.Hour)

	vehicle := addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)
	addSample(t, store, vehicle.ID, now.Add(-2*time.Hour), 40, 1000)
	addSample(t, store, vehicle.ID, now.Add(-1*time.Hour), 60, 1100)
	addSample(t, store, vehicle.ID, now.Add(-30*time.Hour), 90, 900)

	avg, err := store.AverageFuelLevel(context.Background(), fleet.ID, since)
	if err != nil {
		t.Fatalf("AverageFuelLevel: %v", err)
	}
	if avg != 50 {
		t.Errorf("expected average 50, got %v", avg)
	}
}

func TestAverageFuelLevelEmptyWindow(t *testing.T) {
	store, fleet := newTestStore(t)

	avg, err := store.AverageFuelLevel(context.Background(), fleet.ID, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("AverageFuelLevel: %v", err)
	}
	if avg != 0 {
		t.Errorf("expected 0 for empty window, got %v", avg)
	}
}

func TestFindRecentSimilarAlertWindow(t *testing.T) {
	store, fleet := newTestStore(t)
	vehicle := addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)
	now := time.Now()

	old := &models.Alert{
		AlertID:       "a-old",
		VehicleID:     vehicle.ID,
		ViolationType: models.ViolationOverspeeding,
		Severity:      1,
		Timestamp:     now.Add(-10 * time.Minute),
	}
	if err := store.InsertAlert(context.Background(), old); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	// Outside the 5-minute window.
	_, err := store.FindRecentSimilarAlert(context.Background(), vehicle.ID, models.ViolationOverspeeding, now.Add(-5*time.Minute))
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound outside window, got %v", err)
	}

	recent := &models.Alert{
		AlertID:       "a-recent",
		VehicleID:     vehicle.ID,
		ViolationType: models.ViolationOverspeeding,
		Severity:      2,
		Timestamp:     now.Add(-2 * time.Minute),
	}
	if err := store.InsertAlert(context.Background(), recent); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	got, err := store.FindRecentSimilarAlert(context.Background(), vehicle.ID, models.ViolationOverspeeding, now.Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("FindRecentSimilarAlert: %v", err)
	}
	if got.AlertID != "a-recent" {
		t.Errorf("expected most recent alert, got %s", got.AlertID)
	}

	// A different violation type never matches.
	_, err = store.FindRecentSimilarAlert(context.Background(), vehicle.ID, models.ViolationLowFuel, now.Add(-5*time.Minute))
	if !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound for other type, got %v", err)
	}
}

func TestEscalateAlert(t *testing.T) {
	store, fleet := newTestStore(t)
	vehicle := addVehicle(t, store, fleet.ID, "VIN001", models.RegistrationActive)

	alert := &models.Alert{
		AlertID:       "a-1",
		VehicleID:     vehicle.ID,
		ViolationType: models.ViolationOverspeeding,
		Severity:      1,
		Timestamp:     time.Now(),
	}
	if err := store.InsertAlert(context.Background(), alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}

	escalatedAt := time.Now().Add(time.Minute)
	if err := store.EscalateAlert(context.Background(), alert.ID, 3, escalatedAt); err != nil {
		t.Fatalf("EscalateAlert: %v", err)
	}

	got, err := store.LatestAlert(context.Background(), vehicle.ID)
	if err != nil {
		t.Fatalf("LatestAlert: %v", err)
	}
	if got.Severity != 4 {
		t.Errorf("expected severity 4 after escalation, got %d", got.Severity)
	}
	if !got.UpdatedAt.Equal(escalatedAt) {
		t.Errorf("expected updated_at %v, got %v", escalatedAt, got.UpdatedAt)
	}
	if !got.CreatedAt.Before(escalatedAt) {
		t.Errorf("escalation must not touch created_at")
	}

	if err := store.EscalateAlert(context.Background(), "missing", 1, time.Now()); !errors.Is(err, ErrAlertNotFound) {
		t.Errorf("expected ErrAlertNotFound, got %v", err)
	}
}

func TestUpsertSnapshotSameDay(t *testing.T) {
	store, fleet := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertSnapshot(ctx, &models.FleetAnalyticsSnapshot{
		FleetID:       fleet.ID,
		TotalVehicles: 3,
	})
	if err != nil {
		t.Fatalf("UpsertSnapshot: %v", err)
	}

	second, err := store.UpsertSnapshot(ctx, &models.FleetAnalyticsSnapshot{
		FleetID:       fleet.ID,
		TotalVehicles: 5,
	})
	if err != nil {
		t.Fatalf("UpsertSnapshot: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("same-day upsert must reuse the row, got new id %s", second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("same-day upsert must keep created_at")
	}

	latest, err := store.LatestSnapshot(ctx, fleet.ID)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if latest.TotalVehicles != 5 {
		t.Errorf("expected updated total 5, got %d", latest.TotalVehicles)
	}
}

func TestLatestSnapshotMissing(t *testing.T) {
	store, fleet := newTestStore(t)

	_, err := store.LatestSnapshot(context.Background(), fleet.ID)
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestSameCalendarDay(t *testing.T) {
	base := time.Date(2025, 3, 10, 23, 50, 0, 0, time.UTC)
	if !sameCalendarDay(base, base.Add(5*time.Minute)) {
		t.Errorf("same date must match")
	}
	// 20 minutes apart but across midnight: different rows.
	if sameCalendarDay(base, base.Add(20*time.Minute)) {
		t.Errorf("crossing midnight must not match")
	}
}
