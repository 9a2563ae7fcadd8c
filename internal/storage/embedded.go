package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/savegress/fleetsense/pkg/models"
)

// EmbeddedStore is a SQLite-backed Store for single-node deployments
type EmbeddedStore struct {
	db *sql.DB
}

// NewEmbeddedStore opens (or creates) the SQLite database under dataPath
func NewEmbeddedStore(dataPath string) (*EmbeddedStore, error) {
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataPath, "fleetsense.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &EmbeddedStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *EmbeddedStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fleets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL DEFAULT 'Corporate',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		vin TEXT UNIQUE NOT NULL,
		manufacturer TEXT NOT NULL,
		model TEXT NOT NULL,
		fleet_id TEXT NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
		owner TEXT,
		registration_status TEXT NOT NULL DEFAULT 'Active',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vehicles_fleet ON vehicles(fleet_id);

	CREATE TABLE IF NOT EXISTS telemetry (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		speed REAL NOT NULL,
		engine_status TEXT NOT NULL,
		fuel_level REAL NOT NULL,
		odometer REAL NOT NULL,
		diagnostic_codes TEXT,
		timestamp TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_ts ON telemetry(vehicle_id, timestamp);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		alert_id TEXT UNIQUE NOT NULL,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		violation_type TEXT NOT NULL,
		severity INTEGER NOT NULL,
		description TEXT,
		telemetry_snapshot TEXT,
		timestamp TIMESTAMP NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_type_ts ON alerts(vehicle_id, violation_type, timestamp);

	CREATE TABLE IF NOT EXISTS fleet_analytics (
		id TEXT PRIMARY KEY,
		fleet_id TEXT NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
		total_vehicles INTEGER NOT NULL DEFAULT 0,
		active_vehicles INTEGER NOT NULL DEFAULT 0,
		inactive_vehicles INTEGER NOT NULL DEFAULT 0,
		average_fuel_level REAL NOT NULL DEFAULT 0,
		total_distance_24h REAL NOT NULL DEFAULT 0,
		alert_count INTEGER NOT NULL DEFAULT 0,
		alert_count_severe INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fleet_analytics_fleet_created ON fleet_analytics(fleet_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Fleets

func (s *EmbeddedStore) CreateFleet(ctx context.Context, fleet *models.Fleet) error {
	if fleet.ID == "" {
		fleet.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	fleet.CreatedAt = now
	fleet.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fleets (id, name, description, type, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		fleet.ID, fleet.Name, fleet.Description, fleet.Type, fleet.CreatedAt, fleet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create fleet: %w", err)
	}
	return nil
}

func (s *EmbeddedStore) GetFleet(ctx context.Context, id string) (*models.Fleet, error) {
	fleet := &models.Fleet{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, COALESCE(description, ''), type, created_at, updated_at FROM fleets WHERE id = ?`, id).
		Scan(&fleet.ID, &fleet.Name, &fleet.Description, &fleet.Type, &fleet.CreatedAt, &fleet.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFleetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fleet: %w", err)
	}
	return fleet, nil
}

func (s *EmbeddedStore) ListFleets(ctx context.Context) ([]*models.Fleet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(description, ''), type, created_at, updated_at FROM fleets ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list fleets: %w", err)
	}
	defer rows.Close()

	var fleets []*models.Fleet
	for rows.Next() {
		fleet := &models.Fleet{}
		if err := rows.Scan(&fleet.ID, &fleet.Name, &fleet.Description, &fleet.Type, &fleet.CreatedAt, &fleet.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fleet: %w", err)
		}
		fleets = append(fleets, fleet)
	}
	return fleets, rows.Err()
}

// Vehicles

const sqliteVehicleColumns = `id, vin, manufacturer, model, fleet_id, COALESCE(owner, ''), registration_status, created_at, updated_at`

func (s *EmbeddedStore) scanVehicleRow(row *sql.Row) (*models.Vehicle, error) {
	vehicle := &models.Vehicle{}
	err := row.Scan(&vehicle.ID, &vehicle.VIN, &vehicle.Manufacturer, &vehicle.Model,
		&vehicle.FleetID, &vehicle.Owner, &vehicle.RegistrationStatus, &vehicle.CreatedAt, &vehicle.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

func (s *EmbeddedStore) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == "" {
		vehicle.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vehicles WHERE vin = ?`, vehicle.VIN).Scan(&exists); err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	if exists > 0 {
		return ErrDuplicateVIN
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO vehicles (id, vin, manufacturer, model, fleet_id, owner, registration_status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		vehicle.ID, vehicle.VIN, vehicle.Manufacturer, vehicle.Model, vehicle.FleetID,
		vehicle.Owner, vehicle.RegistrationStatus, vehicle.CreatedAt, vehicle.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

func (s *EmbeddedStore) GetVehicleByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	vehicle, err := s.scanVehicleRow(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteVehicleColumns+` FROM vehicles WHERE vin = ?`, vin))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by vin: %w", err)
	}
	return vehicle, nil
}

func (s *EmbeddedStore) GetVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := s.scanVehicleRow(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteVehicleColumns+` FROM vehicles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return vehicle, nil
}

func (s *EmbeddedStore) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteVehicleColumns+` FROM vehicles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()
	return s.collectVehicles(rows)
}

func (s *EmbeddedStore) ListVehiclesByFleet(ctx context.Context, fleetID string) ([]*models.Vehicle, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteVehicleColumns+` FROM vehicles WHERE fleet_id = ? ORDER BY created_at DESC`, fleetID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles by fleet: %w", err)
	}
	defer rows.Close()
	return s.collectVehicles(rows)
}

func (s *EmbeddedStore) ListActiveVehicles(ctx context.Context, since time.Time) ([]*models.Vehicle, error) {
	query := `
		SELECT DISTINCT v.id, v.vin, v.manufacturer, v.model, v.fleet_id, COALESCE(v.owner, ''),
			v.registration_status, v.created_at, v.updated_at
		FROM vehicles v
		JOIN telemetry t ON t.vehicle_id = v.id
		WHERE t.timestamp >= ? AND v.registration_status = ?`
	rows, err := s.db.QueryContext(ctx, query, since, models.RegistrationActive)
	if err != nil {
		return nil, fmt.Errorf("list active vehicles: %w", err)
	}
	defer rows.Close()
	return s.collectVehicles(rows)
}

func (s *EmbeddedStore) collectVehicles(rows *sql.Rows) ([]*models.Vehicle, error) {
	var vehicles []*models.Vehicle
	for rows.Next() {
		vehicle := &models.Vehicle{}
		err := rows.Scan(&vehicle.ID, &vehicle.VIN, &vehicle.Manufacturer, &vehicle.Model,
			&vehicle.FleetID, &vehicle.Owner, &vehicle.RegistrationStatus, &vehicle.CreatedAt, &vehicle.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, rows.Err()
}

// Telemetry

const sqliteTelemetryColumns = `id, vehicle_id, latitude, longitude, speed, engine_status, fuel_level, odometer, COALESCE(diagnostic_codes, ''), timestamp, created_at`

func (s *EmbeddedStore) InsertTelemetry(ctx context.Context, sample *models.TelemetrySample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	sample.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO telemetry (id, vehicle_id, latitude, longitude, speed, engine_status, fuel_level, odometer, diagnostic_codes, timestamp, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?)`,
		sample.ID, sample.VehicleID, sample.Latitude, sample.Longitude, sample.Speed,
		sample.EngineStatus, sample.FuelLevel, sample.Odometer, sample.DiagnosticCodes,
		sample.Timestamp, sample.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

func (s *EmbeddedStore) ListTelemetryByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.TelemetrySample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteTelemetryColumns+` FROM telemetry WHERE vehicle_id = ? ORDER BY timestamp DESC LIMIT ?`,
		vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry by vehicle: %w", err)
	}
	defer rows.Close()
	return s.collectSamples(rows)
}

func (s *EmbeddedStore) LatestTelemetry(ctx context.Context, vehicleID string) (*models.TelemetrySample, error) {
	samples, err := s.ListTelemetryByVehicle(ctx, vehicleID, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoTelemetry
	}
	return samples[0], nil
}

func (s *EmbeddedStore) ListTelemetryByFleet(ctx context.Context, fleetID string, limit int) ([]*models.TelemetrySample, error) {
	query := `
		SELECT t.id, t.vehicle_id, t.latitude, t.longitude, t.speed, t.engine_status, t.fuel_level,
			t.odometer, COALESCE(t.diagnostic_codes, ''), t.timestamp, t.created_at
		FROM telemetry t
		JOIN vehicles v ON v.id = t.vehicle_id
		WHERE v.fleet_id = ?
		ORDER BY t.timestamp DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, fleetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry by fleet: %w", err)
	}
	defer rows.Close()
	return s.collectSamples(rows)
}

func (s *EmbeddedStore) collectSamples(rows *sql.Rows) ([]*models.TelemetrySample, error) {
	var samples []*models.TelemetrySample
	for rows.Next() {
		sample := &models.TelemetrySample{}
		err := rows.Scan(&sample.ID, &sample.VehicleID, &sample.Latitude, &sample.Longitude,
			&sample.Speed, &sample.EngineStatus, &sample.FuelLevel, &sample.Odometer,
			&sample.DiagnosticCodes, &sample.Timestamp, &sample.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *EmbeddedStore) AverageFuelLevel(ctx context.Context, fleetID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(t.fuel_level), 0)
		FROM telemetry t
		JOIN vehicles v ON v.id = t.vehicle_id
		WHERE v.fleet_id = ? AND t.timestamp >= ?`
	var avg float64
	if err := s.db.QueryRowContext(ctx, query, fleetID, since).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average fuel level: %w", err)
	}
	return avg, nil
}

func (s *EmbeddedStore) OdometerRanges(ctx context.Context, fleetID string, since time.Time) ([]models.OdometerRange, error) {
	query := `
		SELECT m.vehicle_id, m.max_odometer, w.min_odometer
		FROM (
			SELECT t.vehicle_id, MAX(t.odometer) AS max_odometer
			FROM telemetry t JOIN vehicles v ON v.id = t.vehicle_id
			WHERE v.fleet_id = ?
			GROUP BY t.vehicle_id
		) m
		JOIN (
			SELECT t.vehicle_id, MIN(t.odometer) AS min_odometer
			FROM telemetry t JOIN vehicles v ON v.id = t.vehicle_id
			WHERE v.fleet_id = ? AND t.timestamp >= ?
			GROUP BY t.vehicle_id
		) w ON w.vehicle_id = m.vehicle_id`
	rows, err := s.db.QueryContext(ctx, query, fleetID, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("odometer ranges: %w", err)
	}
	defer rows.Close()

	var ranges []models.OdometerRange
	for rows.Next() {
		var r models.OdometerRange
		if err := rows.Scan(&r.VehicleID, &r.Max, &r.WindowMin); err != nil {
			return nil, fmt.Errorf("scan odometer range: %w", err)
		}
		ranges = append(ranges, r)
	}
	return ranges, rows.Err()
}

// Alerts

const sqliteAlertColumns = `id, alert_id, vehicle_id, violation_type, severity, COALESCE(description, ''), COALESCE(telemetry_snapshot, ''), timestamp, created_at, updated_at`

func (s *EmbeddedStore) collectAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert := &models.Alert{}
		var snapshot string
		err := rows.Scan(&alert.ID, &alert.AlertID, &alert.VehicleID, &alert.ViolationType,
			&alert.Severity, &alert.Description, &snapshot, &alert.Timestamp, &alert.CreatedAt, &alert.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if snapshot != "" {
			alert.TelemetrySnapshot = []byte(snapshot)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *EmbeddedStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, alert_id, vehicle_id, violation_type, severity, description, telemetry_snapshot, timestamp, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ID, alert.AlertID, alert.VehicleID, alert.ViolationType, alert.Severity,
		alert.Description, string(alert.TelemetrySnapshot), alert.Timestamp, alert.CreatedAt, alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *EmbeddedStore) FindRecentSimilarAlert(ctx context.Context, vehicleID string, violationType models.ViolationType, since time.Time) (*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAlertColumns+` FROM alerts
		 WHERE vehicle_id = ? AND violation_type = ? AND timestamp >= ?
		 ORDER BY timestamp DESC LIMIT 1`,
		vehicleID, violationType, since)
	if err != nil {
		return nil, fmt.Errorf("find recent similar alert: %w", err)
	}
	defer rows.Close()

	alerts, err := s.collectAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrAlertNotFound
	}
	return alerts[0], nil
}

func (s *EmbeddedStore) EscalateAlert(ctx context.Context, id string, delta int, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET severity = severity + ?, updated_at = ? WHERE id = ?`,
		delta, now, id)
	if err != nil {
		return fmt.Errorf("escalate alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("escalate alert: %w", err)
	}
	if affected == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (s *EmbeddedStore) ListAlertsByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteAlertColumns+` FROM alerts WHERE vehicle_id = ? ORDER BY timestamp DESC LIMIT ?`,
		vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts by vehicle: %w", err)
	}
	defer rows.Close()
	return s.collectAlerts(rows)
}

func (s *EmbeddedStore) LatestAlert(ctx context.Context, vehicleID string) (*models.Alert, error) {
	alerts, err := s.ListAlertsByVehicle(ctx, vehicleID, 1)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrAlertNotFound
	}
	return alerts[0], nil
}

func (s *EmbeddedStore) ListAlertsByFleet(ctx context.Context, fleetID string, limit int) ([]*models.Alert, error) {
	query := `
		SELECT a.id, a.alert_id, a.vehicle_id, a.violation_type, a.severity, COALESCE(a.description, ''),
			COALESCE(a.telemetry_snapshot, ''), a.timestamp, a.created_at, a.updated_at
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = ?
		ORDER BY a.timestamp DESC
		LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, fleetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts by fleet: %w", err)
	}
	defer rows.Close()
	return s.collectAlerts(rows)
}

func (s *EmbeddedStore) CountAlertsBySeverity(ctx context.Context, fleetID string, since time.Time) ([]models.SeverityCount, error) {
	query := `
		SELECT a.severity, COUNT(*)
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = ? AND a.timestamp >= ?
		GROUP BY a.severity
		ORDER BY a.severity`
	rows, err := s.db.QueryContext(ctx, query, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("count alerts by severity: %w", err)
	}
	defer rows.Close()

	var counts []models.SeverityCount
	for rows.Next() {
		var c models.SeverityCount
		if err := rows.Scan(&c.Severity, &c.Count); err != nil {
			return nil, fmt.Errorf("scan severity count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *EmbeddedStore) CountAlertsByType(ctx context.Context, fleetID string, since time.Time) ([]models.TypeCount, error) {
	query := `
		SELECT a.violation_type, COUNT(*)
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = ? AND a.timestamp >= ?
		GROUP BY a.violation_type
		ORDER BY a.violation_type`
	rows, err := s.db.QueryContext(ctx, query, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("count alerts by type: %w", err)
	}
	defer rows.Close()

	var counts []models.TypeCount
	for rows.Next() {
		var c models.TypeCount
		if err := rows.Scan(&c.ViolationType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// Snapshots

const sqliteSnapshotColumns = `id, fleet_id, total_vehicles, active_vehicles, inactive_vehicles, average_fuel_level, total_distance_24h, alert_count, alert_count_severe, created_at`

func (s *EmbeddedStore) scanSnapshotRow(row *sql.Row) (*models.FleetAnalyticsSnapshot, error) {
	snapshot := &models.FleetAnalyticsSnapshot{}
	err := row.Scan(&snapshot.ID, &snapshot.FleetID, &snapshot.TotalVehicles, &snapshot.ActiveVehicles,
		&snapshot.InactiveVehicles, &snapshot.AverageFuelLevel, &snapshot.TotalDistance24h,
		&snapshot.AlertCount, &snapshot.AlertCountSevere, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *EmbeddedStore) UpsertSnapshot(ctx context.Context, snapshot *models.FleetAnalyticsSnapshot) (*models.FleetAnalyticsSnapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}
	defer tx.Rollback()

	latest := &models.FleetAnalyticsSnapshot{}
	err = tx.QueryRowContext(ctx,
		`SELECT `+sqliteSnapshotColumns+` FROM fleet_analytics WHERE fleet_id = ? ORDER BY created_at DESC LIMIT 1`,
		snapshot.FleetID).
		Scan(&latest.ID, &latest.FleetID, &latest.TotalVehicles, &latest.ActiveVehicles,
			&latest.InactiveVehicles, &latest.AverageFuelLevel, &latest.TotalDistance24h,
			&latest.AlertCount, &latest.AlertCountSevere, &latest.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		latest = nil
	case err != nil:
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	if latest != nil && sameCalendarDay(latest.CreatedAt.Local(), time.Now()) {
		_, err = tx.ExecContext(ctx,
			`UPDATE fleet_analytics
			 SET total_vehicles = ?, active_vehicles = ?, inactive_vehicles = ?,
				average_fuel_level = ?, total_distance_24h = ?, alert_count = ?, alert_count_severe = ?
			 WHERE id = ?`,
			snapshot.TotalVehicles, snapshot.ActiveVehicles, snapshot.InactiveVehicles,
			snapshot.AverageFuelLevel, snapshot.TotalDistance24h, snapshot.AlertCount,
			snapshot.AlertCountSevere, latest.ID)
		if err != nil {
			return nil, fmt.Errorf("update snapshot: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("upsert snapshot: %w", err)
		}
		out := *snapshot
		out.ID = latest.ID
		out.CreatedAt = latest.CreatedAt
		return &out, nil
	}

	id := uuid.New().String()
	createdAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO fleet_analytics (id, fleet_id, total_vehicles, active_vehicles, inactive_vehicles,
			average_fuel_level, total_distance_24h, alert_count, alert_count_severe, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, snapshot.FleetID, snapshot.TotalVehicles, snapshot.ActiveVehicles, snapshot.InactiveVehicles,
		snapshot.AverageFuelLevel, snapshot.TotalDistance24h, snapshot.AlertCount,
		snapshot.AlertCountSevere, createdAt)
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	out := *snapshot
	out.ID = id
	out.CreatedAt = createdAt
	return &out, nil
}

func (s *EmbeddedStore) LatestSnapshot(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	snapshot, err := s.scanSnapshotRow(s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSnapshotColumns+` FROM fleet_analytics WHERE fleet_id = ? ORDER BY created_at DESC LIMIT 1`,
		fleetID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *EmbeddedStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *EmbeddedStore) Close() error {
	return s.db.Close()
}
