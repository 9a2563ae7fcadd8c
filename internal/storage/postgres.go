package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/savegress/fleetsense/pkg/models"
)

// PostgresStore is the production Store backed by a pgx connection pool
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and bootstraps the schema
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS fleets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		type TEXT NOT NULL DEFAULT 'Corporate',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS vehicles (
		id TEXT PRIMARY KEY,
		vin TEXT UNIQUE NOT NULL,
		manufacturer TEXT NOT NULL,
		model TEXT NOT NULL,
		fleet_id TEXT NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
		owner TEXT,
		registration_status TEXT NOT NULL DEFAULT 'Active',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_vehicles_fleet ON vehicles(fleet_id);
	CREATE INDEX IF NOT EXISTS idx_vehicles_status ON vehicles(registration_status);

	CREATE TABLE IF NOT EXISTS telemetry (
		id TEXT PRIMARY KEY,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		latitude DOUBLE PRECISION NOT NULL,
		longitude DOUBLE PRECISION NOT NULL,
		speed DOUBLE PRECISION NOT NULL,
		engine_status TEXT NOT NULL,
		fuel_level DOUBLE PRECISION NOT NULL,
		odometer DOUBLE PRECISION NOT NULL,
		diagnostic_codes TEXT,
		timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_telemetry_vehicle_ts ON telemetry(vehicle_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_telemetry_ts ON telemetry(timestamp);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		alert_id TEXT UNIQUE NOT NULL,
		vehicle_id TEXT NOT NULL REFERENCES vehicles(id) ON DELETE CASCADE,
		violation_type TEXT NOT NULL,
		severity INTEGER NOT NULL,
		description TEXT,
		telemetry_snapshot JSONB,
		timestamp TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_vehicle_type_ts ON alerts(vehicle_id, violation_type, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts(timestamp);

	CREATE TABLE IF NOT EXISTS fleet_analytics (
		id TEXT PRIMARY KEY,
		fleet_id TEXT NOT NULL REFERENCES fleets(id) ON DELETE CASCADE,
		total_vehicles INTEGER NOT NULL DEFAULT 0,
		active_vehicles INTEGER NOT NULL DEFAULT 0,
		inactive_vehicles INTEGER NOT NULL DEFAULT 0,
		average_fuel_level DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_distance_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
		alert_count INTEGER NOT NULL DEFAULT 0,
		alert_count_severe INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_fleet_analytics_fleet_created ON fleet_analytics(fleet_id, created_at DESC);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Fleets

func (s *PostgresStore) CreateFleet(ctx context.Context, fleet *models.Fleet) error {
	if fleet.ID == "" {
		fleet.ID = uuid.New().String()
	}
	query := `
		INSERT INTO fleets (id, name, description, type)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`
	err := s.pool.QueryRow(ctx, query, fleet.ID, fleet.Name, fleet.Description, fleet.Type).
		Scan(&fleet.CreatedAt, &fleet.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create fleet: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFleet(ctx context.Context, id string) (*models.Fleet, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), type, created_at, updated_at
		FROM fleets WHERE id = $1`
	fleet := &models.Fleet{}
	err := s.pool.QueryRow(ctx, query, id).
		Scan(&fleet.ID, &fleet.Name, &fleet.Description, &fleet.Type, &fleet.CreatedAt, &fleet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFleetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get fleet: %w", err)
	}
	return fleet, nil
}

func (s *PostgresStore) ListFleets(ctx context.Context) ([]*models.Fleet, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), type, created_at, updated_at
		FROM fleets ORDER BY created_at DESC`
	rows, err := s.pool.Query(ctx, query)
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

const vehicleColumns = `id, vin, manufacturer, model, fleet_id, COALESCE(owner, ''), registration_status, created_at, updated_at`

func scanVehicle(row pgx.Row) (*models.Vehicle, error) {
	vehicle := &models.Vehicle{}
	err := row.Scan(&vehicle.ID, &vehicle.VIN, &vehicle.Manufacturer, &vehicle.Model,
		&vehicle.FleetID, &vehicle.Owner, &vehicle.RegistrationStatus, &vehicle.CreatedAt, &vehicle.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return vehicle, nil
}

func (s *PostgresStore) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle.ID == "" {
		vehicle.ID = uuid.New().String()
	}
	query := `
		INSERT INTO vehicles (id, vin, manufacturer, model, fleet_id, owner, registration_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (vin) DO NOTHING
		RETURNING created_at, updated_at`
	err := s.pool.QueryRow(ctx, query, vehicle.ID, vehicle.VIN, vehicle.Manufacturer,
		vehicle.Model, vehicle.FleetID, vehicle.Owner, vehicle.RegistrationStatus).
		Scan(&vehicle.CreatedAt, &vehicle.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateVIN
	}
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetVehicleByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	vehicle, err := scanVehicle(s.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE vin = $1`, vin))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by vin: %w", err)
	}
	return vehicle, nil
}

func (s *PostgresStore) GetVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	vehicle, err := scanVehicle(s.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVehicleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by id: %w", err)
	}
	return vehicle, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()
	return collectVehicles(rows)
}

func (s *PostgresStore) ListVehiclesByFleet(ctx context.Context, fleetID string) ([]*models.Vehicle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE fleet_id = $1 ORDER BY created_at DESC`, fleetID)
	if err != nil {
		return nil, fmt.Errorf("list vehicles by fleet: %w", err)
	}
	defer rows.Close()
	return collectVehicles(rows)
}

func (s *PostgresStore) ListActiveVehicles(ctx context.Context, since time.Time) ([]*models.Vehicle, error) {
	query := `
		SELECT DISTINCT v.id, v.vin, v.manufacturer, v.model, v.fleet_id, COALESCE(v.owner, ''),
			v.registration_status, v.created_at, v.updated_at
		FROM vehicles v
		JOIN telemetry t ON t.vehicle_id = v.id
		WHERE t.timestamp >= $1 AND v.registration_status = $2`
	rows, err := s.pool.Query(ctx, query, since, models.RegistrationActive)
	if err != nil {
		return nil, fmt.Errorf("list active vehicles: %w", err)
	}
	defer rows.Close()
	return collectVehicles(rows)
}

func collectVehicles(rows pgx.Rows) ([]*models.Vehicle, error) {
	var vehicles []*models.Vehicle
	for rows.Next() {
		vehicle, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		vehicles = append(vehicles, vehicle)
	}
	return vehicles, rows.Err()
}

// Telemetry

const telemetryColumns = `id, vehicle_id, latitude, longitude, speed, engine_status, fuel_level, odometer, COALESCE(diagnostic_codes, ''), timestamp, created_at`

func scanSample(row pgx.Row) (*models.TelemetrySample, error) {
	sample := &models.TelemetrySample{}
	err := row.Scan(&sample.ID, &sample.VehicleID, &sample.Latitude, &sample.Longitude,
		&sample.Speed, &sample.EngineStatus, &sample.FuelLevel, &sample.Odometer,
		&sample.DiagnosticCodes, &sample.Timestamp, &sample.CreatedAt)
	if err != nil {
		return nil, err
	}
	return sample, nil
}

func (s *PostgresStore) InsertTelemetry(ctx context.Context, sample *models.TelemetrySample) error {
	if sample.ID == "" {
		sample.ID = uuid.New().String()
	}
	query := `
		INSERT INTO telemetry (id, vehicle_id, latitude, longitude, speed, engine_status, fuel_level, odometer, diagnostic_codes, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, query, sample.ID, sample.VehicleID, sample.Latitude, sample.Longitude,
		sample.Speed, sample.EngineStatus, sample.FuelLevel, sample.Odometer, sample.DiagnosticCodes, sample.Timestamp).
		Scan(&sample.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTelemetryByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.TelemetrySample, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+telemetryColumns+` FROM telemetry WHERE vehicle_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry by vehicle: %w", err)
	}
	defer rows.Close()
	return collectSamples(rows)
}

func (s *PostgresStore) LatestTelemetry(ctx context.Context, vehicleID string) (*models.TelemetrySample, error) {
	sample, err := scanSample(s.pool.QueryRow(ctx,
		`SELECT `+telemetryColumns+` FROM telemetry WHERE vehicle_id = $1 ORDER BY timestamp DESC LIMIT 1`,
		vehicleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoTelemetry
	}
	if err != nil {
		return nil, fmt.Errorf("latest telemetry: %w", err)
	}
	return sample, nil
}

func (s *PostgresStore) ListTelemetryByFleet(ctx context.Context, fleetID string, limit int) ([]*models.TelemetrySample, error) {
	query := `
		SELECT t.id, t.vehicle_id, t.latitude, t.longitude, t.speed, t.engine_status, t.fuel_level,
			t.odometer, COALESCE(t.diagnostic_codes, ''), t.timestamp, t.created_at
		FROM telemetry t
		JOIN vehicles v ON v.id = t.vehicle_id
		WHERE v.fleet_id = $1
		ORDER BY t.timestamp DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, fleetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list telemetry by fleet: %w", err)
	}
	defer rows.Close()
	return collectSamples(rows)
}

func collectSamples(rows pgx.Rows) ([]*models.TelemetrySample, error) {
	var samples []*models.TelemetrySample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan telemetry: %w", err)
		}
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

func (s *PostgresStore) AverageFuelLevel(ctx context.Context, fleetID string, since time.Time) (float64, error) {
	query := `
		SELECT COALESCE(AVG(t.fuel_level), 0)
		FROM telemetry t
		JOIN vehicles v ON v.id = t.vehicle_id
		WHERE v.fleet_id = $1 AND t.timestamp >= $2`
	var avg float64
	if err := s.pool.QueryRow(ctx, query, fleetID, since).Scan(&avg); err != nil {
		return 0, fmt.Errorf("average fuel level: %w", err)
	}
	return avg, nil
}

func (s *PostgresStore) OdometerRanges(ctx context.Context, fleetID string, since time.Time) ([]models.OdometerRange, error) {
	// The max is over the vehicle's full history while the min is
	// window-restricted; vehicles with no sample inside the window drop
	// out via the inner join.
	query := `
		SELECT m.vehicle_id, m.max_odometer, w.min_odometer
		FROM (
			SELECT t.vehicle_id, MAX(t.odometer) AS max_odometer
			FROM telemetry t JOIN vehicles v ON v.id = t.vehicle_id
			WHERE v.fleet_id = $1
			GROUP BY t.vehicle_id
		) m
		JOIN (
			SELECT t.vehicle_id, MIN(t.odometer) AS min_odometer
			FROM telemetry t JOIN vehicles v ON v.id = t.vehicle_id
			WHERE v.fleet_id = $1 AND t.timestamp >= $2
			GROUP BY t.vehicle_id
		) w ON w.vehicle_id = m.vehicle_id`
	rows, err := s.pool.Query(ctx, query, fleetID, since)
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

const alertColumns = `id, alert_id, vehicle_id, violation_type, severity, COALESCE(description, ''), telemetry_snapshot, timestamp, created_at, updated_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(&alert.ID, &alert.AlertID, &alert.VehicleID, &alert.ViolationType,
		&alert.Severity, &alert.Description, &alert.TelemetrySnapshot,
		&alert.Timestamp, &alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (s *PostgresStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	query := `
		INSERT INTO alerts (id, alert_id, vehicle_id, violation_type, severity, description, telemetry_snapshot, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`
	err := s.pool.QueryRow(ctx, query, alert.ID, alert.AlertID, alert.VehicleID, alert.ViolationType,
		alert.Severity, alert.Description, alert.TelemetrySnapshot, alert.Timestamp).
		Scan(&alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRecentSimilarAlert(ctx context.Context, vehicleID string, violationType models.ViolationType, since time.Time) (*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE vehicle_id = $1 AND violation_type = $2 AND timestamp >= $3
		ORDER BY timestamp DESC
		LIMIT 1`
	alert, err := scanAlert(s.pool.QueryRow(ctx, query, vehicleID, violationType, since))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recent similar alert: %w", err)
	}
	return alert, nil
}

func (s *PostgresStore) EscalateAlert(ctx context.Context, id string, delta int, now time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE alerts SET severity = severity + $2, updated_at = $3 WHERE id = $1`,
		id, delta, now)
	if err != nil {
		return fmt.Errorf("escalate alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlertNotFound
	}
	return nil
}

func (s *PostgresStore) ListAlertsByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE vehicle_id = $1 ORDER BY timestamp DESC LIMIT $2`,
		vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts by vehicle: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func (s *PostgresStore) LatestAlert(ctx context.Context, vehicleID string) (*models.Alert, error) {
	alert, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE vehicle_id = $1 ORDER BY timestamp DESC LIMIT 1`,
		vehicleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest alert: %w", err)
	}
	return alert, nil
}

func (s *PostgresStore) ListAlertsByFleet(ctx context.Context, fleetID string, limit int) ([]*models.Alert, error) {
	query := `
		SELECT a.id, a.alert_id, a.vehicle_id, a.violation_type, a.severity, COALESCE(a.description, ''),
			a.telemetry_snapshot, a.timestamp, a.created_at, a.updated_at
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = $1
		ORDER BY a.timestamp DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, fleetID, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts by fleet: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) CountAlertsBySeverity(ctx context.Context, fleetID string, since time.Time) ([]models.SeverityCount, error) {
	query := `
		SELECT a.severity, COUNT(*)
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = $1 AND a.timestamp >= $2
		GROUP BY a.severity
		ORDER BY a.severity`
	rows, err := s.pool.Query(ctx, query, fleetID, since)
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

func (s *PostgresStore) CountAlertsByType(ctx context.Context, fleetID string, since time.Time) ([]models.TypeCount, error) {
	query := `
		SELECT a.violation_type, COUNT(*)
		FROM alerts a
		JOIN vehicles v ON v.id = a.vehicle_id
		WHERE v.fleet_id = $1 AND a.timestamp >= $2
		GROUP BY a.violation_type
		ORDER BY a.violation_type`
	rows, err := s.pool.Query(ctx, query, fleetID, since)
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

const snapshotColumns = `id, fleet_id, total_vehicles, active_vehicles, inactive_vehicles, average_fuel_level, total_distance_24h, alert_count, alert_count_severe, created_at`

func scanSnapshot(row pgx.Row) (*models.FleetAnalyticsSnapshot, error) {
	snapshot := &models.FleetAnalyticsSnapshot{}
	err := row.Scan(&snapshot.ID, &snapshot.FleetID, &snapshot.TotalVehicles, &snapshot.ActiveVehicles,
		&snapshot.InactiveVehicles, &snapshot.AverageFuelLevel, &snapshot.TotalDistance24h,
		&snapshot.AlertCount, &snapshot.AlertCountSevere, &snapshot.CreatedAt)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *PostgresStore) UpsertSnapshot(ctx context.Context, snapshot *models.FleetAnalyticsSnapshot) (*models.FleetAnalyticsSnapshot, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	latest, err := scanSnapshot(tx.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM fleet_analytics WHERE fleet_id = $1 ORDER BY created_at DESC LIMIT 1 FOR UPDATE`,
		snapshot.FleetID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		latest = nil
	case err != nil:
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	if latest != nil && sameCalendarDay(latest.CreatedAt.Local(), time.Now()) {
		query := `
			UPDATE fleet_analytics
			SET total_vehicles = $2, active_vehicles = $3, inactive_vehicles = $4,
				average_fuel_level = $5, total_distance_24h = $6, alert_count = $7, alert_count_severe = $8
			WHERE id = $1
			RETURNING ` + snapshotColumns
		updated, err := scanSnapshot(tx.QueryRow(ctx, query, latest.ID,
			snapshot.TotalVehicles, snapshot.ActiveVehicles, snapshot.InactiveVehicles,
			snapshot.AverageFuelLevel, snapshot.TotalDistance24h, snapshot.AlertCount, snapshot.AlertCountSevere))
		if err != nil {
			return nil, fmt.Errorf("update snapshot: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("upsert snapshot: %w", err)
		}
		return updated, nil
	}

	query := `
		INSERT INTO fleet_analytics (id, fleet_id, total_vehicles, active_vehicles, inactive_vehicles,
			average_fuel_level, total_distance_24h, alert_count, alert_count_severe)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + snapshotColumns
	created, err := scanSnapshot(tx.QueryRow(ctx, query, uuid.New().String(), snapshot.FleetID,
		snapshot.TotalVehicles, snapshot.ActiveVehicles, snapshot.InactiveVehicles,
		snapshot.AverageFuelLevel, snapshot.TotalDistance24h, snapshot.AlertCount, snapshot.AlertCountSevere))
	if err != nil {
		return nil, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	snapshot, err := scanSnapshot(s.pool.QueryRow(ctx,
		`SELECT `+snapshotColumns+` FROM fleet_analytics WHERE fleet_id = $1 ORDER BY created_at DESC LIMIT 1`,
		fleetID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snapshot, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
