package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/pkg/models"
)

// Sentinel errors shared by every backend
var (
	ErrFleetNotFound   = errors.New("fleet not found")
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrAlertNotFound   = errors.New("alert not found")
	ErrNoTelemetry     = errors.New("no telemetry data")
	ErrNoSnapshot      = errors.New("no analytics snapshot")
	ErrDuplicateVIN    = errors.New("vehicle with this VIN already exists")
)

// Store is the storage collaborator for the derived-state pipeline. The
// alert engine and the analytics aggregator only ever talk to this
// interface; backend selection is a deployment concern.
type Store interface {
	// Fleets
	CreateFleet(ctx context.Context, fleet *models.Fleet) error
	GetFleet(ctx context.Context, id string) (*models.Fleet, error)
	ListFleets(ctx context.Context) ([]*models.Fleet, error)

	// Vehicles
	CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error
	GetVehicleByVIN(ctx context.Context, vin string) (*models.Vehicle, error)
	GetVehicleByID(ctx context.Context, id string) (*models.Vehicle, error)
	ListVehicles(ctx context.Context) ([]*models.Vehicle, error)
	ListVehiclesByFleet(ctx context.Context, fleetID string) ([]*models.Vehicle, error)
	// ListActiveVehicles returns vehicles with registration status Active
	// that have at least one telemetry sample since the given cutoff.
	ListActiveVehicles(ctx context.Context, since time.Time) ([]*models.Vehicle, error)

	// Telemetry
	InsertTelemetry(ctx context.Context, sample *models.TelemetrySample) error
	ListTelemetryByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.TelemetrySample, error)
	LatestTelemetry(ctx context.Context, vehicleID string) (*models.TelemetrySample, error)
	ListTelemetryByFleet(ctx context.Context, fleetID string, limit int) ([]*models.TelemetrySample, error)
	// AverageFuelLevel averages fuel_level over all samples for the
	// fleet's vehicles since the cutoff; 0 when there are no samples.
	AverageFuelLevel(ctx context.Context, fleetID string, since time.Time) (float64, error)
	// OdometerRanges returns, per vehicle in the fleet, the maximum
	// odometer reading ever stored together with the minimum reading
	// since the cutoff. Vehicles with no reading inside the window are
	// omitted.
	OdometerRanges(ctx context.Context, fleetID string, since time.Time) ([]models.OdometerRange, error)

	// Alerts
	InsertAlert(ctx context.Context, alert *models.Alert) error
	// FindRecentSimilarAlert returns the most recent alert for the
	// vehicle and violation type with a violation timestamp since the
	// cutoff, or ErrAlertNotFound.
	FindRecentSimilarAlert(ctx context.Context, vehicleID string, violationType models.ViolationType, since time.Time) (*models.Alert, error)
	// EscalateAlert atomically adds delta to the alert's severity and
	// sets its update timestamp. Severity never decreases.
	EscalateAlert(ctx context.Context, id string, delta int, now time.Time) error
	ListAlertsByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error)
	LatestAlert(ctx context.Context, vehicleID string) (*models.Alert, error)
	ListAlertsByFleet(ctx context.Context, fleetID string, limit int) ([]*models.Alert, error)
	CountAlertsBySeverity(ctx context.Context, fleetID string, since time.Time) ([]models.SeverityCount, error)
	CountAlertsByType(ctx context.Context, fleetID string, since time.Time) ([]models.TypeCount, error)

	// Analytics snapshots. UpsertSnapshot updates the fleet's latest
	// snapshot in place when it was created on the same calendar day,
	// otherwise appends a new row, preserving history across days.
	UpsertSnapshot(ctx context.Context, snapshot *models.FleetAnalyticsSnapshot) (*models.FleetAnalyticsSnapshot, error)
	LatestSnapshot(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open creates the storage backend selected by the configuration
func Open(ctx context.Context, cfg *config.StorageConfig) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(ctx, cfg.PostgresURL)
	case "sqlite":
		return NewEmbeddedStore(cfg.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// sameCalendarDay reports whether both instants fall on the same local
// calendar date. Snapshot upserts key on this, not on a 24h delta.
func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
