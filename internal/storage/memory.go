package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/savegress/fleetsense/pkg/models"
)

// MemoryStore is an in-process Store backed by maps. It is the default
// backend for development and the one the engine tests run against.
type MemoryStore struct {
	mu sync.RWMutex

	fleets        map[string]*models.Fleet
	vehicles      map[string]*models.Vehicle
	vehiclesByVIN map[string]*models.Vehicle
	telemetry     []*models.TelemetrySample
	alerts        []*models.Alert
	snapshots     []*models.FleetAnalyticsSnapshot

	seq int64
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		fleets:        make(map[string]*models.Fleet),
		vehicles:      make(map[string]*models.Vehicle),
		vehiclesByVIN: make(map[string]*models.Vehicle),
	}
}

func (s *MemoryStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s_%d", prefix, s.seq)
}

// Fleets

func (s *MemoryStore) CreateFleet(ctx context.Context, fleet *models.Fleet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fleet.ID == "" {
		fleet.ID = s.nextID("flt")
	}
	now := time.Now().UTC()
	fleet.CreatedAt = now
	fleet.UpdatedAt = now

	cp := *fleet
	s.fleets[fleet.ID] = &cp
	return nil
}

func (s *MemoryStore) GetFleet(ctx context.Context, id string) (*models.Fleet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fleet, ok := s.fleets[id]
	if !ok {
		return nil, ErrFleetNotFound
	}
	cp := *fleet
	return &cp, nil
}

func (s *MemoryStore) ListFleets(ctx context.Context) ([]*models.Fleet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Fleet, 0, len(s.fleets))
	for _, fleet := range s.fleets {
		cp := *fleet
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Vehicles

func (s *MemoryStore) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vehiclesByVIN[vehicle.VIN]; exists {
		return ErrDuplicateVIN
	}
	if vehicle.ID == "" {
		vehicle.ID = s.nextID("veh")
	}
	now := time.Now().UTC()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	cp := *vehicle
	s.vehicles[vehicle.ID] = &cp
	s.vehiclesByVIN[vehicle.VIN] = &cp
	return nil
}

func (s *MemoryStore) GetVehicleByVIN(ctx context.Context, vin string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicle, ok := s.vehiclesByVIN[vin]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	cp := *vehicle
	return &cp, nil
}

func (s *MemoryStore) GetVehicleByID(ctx context.Context, id string) (*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vehicle, ok := s.vehicles[id]
	if !ok {
		return nil, ErrVehicleNotFound
	}
	cp := *vehicle
	return &cp, nil
}

func (s *MemoryStore) ListVehicles(ctx context.Context) ([]*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Vehicle, 0, len(s.vehicles))
	for _, vehicle := range s.vehicles {
		cp := *vehicle
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListVehiclesByFleet(ctx context.Context, fleetID string) ([]*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Vehicle
	for _, vehicle := range s.vehicles {
		if vehicle.FleetID == fleetID {
			cp := *vehicle
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListActiveVehicles(ctx context.Context, since time.Time) ([]*models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recent := make(map[string]bool)
	for _, sample := range s.telemetry {
		if !sample.Timestamp.Before(since) {
			recent[sample.VehicleID] = true
		}
	}

	var out []*models.Vehicle
	for _, vehicle := range s.vehicles {
		if vehicle.RegistrationStatus == models.RegistrationActive && recent[vehicle.ID] {
			cp := *vehicle
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Telemetry

func (s *MemoryStore) InsertTelemetry(ctx context.Context, sample *models.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[sample.VehicleID]; !ok {
		return ErrVehicleNotFound
	}
	if sample.ID == "" {
		sample.ID = s.nextID("tel")
	}
	sample.CreatedAt = time.Now().UTC()

	cp := *sample
	s.telemetry = append(s.telemetry, &cp)
	return nil
}

func (s *MemoryStore) ListTelemetryByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.TelemetrySample
	for _, sample := range s.telemetry {
		if sample.VehicleID == vehicleID {
			cp := *sample
			out = append(out, &cp)
		}
	}
	sortSamplesDesc(out)
	return clipSamples(out, limit), nil
}

func (s *MemoryStore) LatestTelemetry(ctx context.Context, vehicleID string) (*models.TelemetrySample, error) {
	samples, err := s.ListTelemetryByVehicle(ctx, vehicleID, 1)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrNoTelemetry
	}
	return samples[0], nil
}

func (s *MemoryStore) ListTelemetryByFleet(ctx context.Context, fleetID string, limit int) ([]*models.TelemetrySample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)
	var out []*models.TelemetrySample
	for _, sample := range s.telemetry {
		if members[sample.VehicleID] {
			cp := *sample
			out = append(out, &cp)
		}
	}
	sortSamplesDesc(out)
	return clipSamples(out, limit), nil
}

func (s *MemoryStore) AverageFuelLevel(ctx context.Context, fleetID string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)
	var sum float64
	var n int
	for _, sample := range s.telemetry {
		if members[sample.VehicleID] && !sample.Timestamp.Before(since) {
			sum += sample.FuelLevel
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return sum / float64(n), nil
}

func (s *MemoryStore) OdometerRanges(ctx context.Context, fleetID string, since time.Time) ([]models.OdometerRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)

	// Max over the vehicle's full history, min restricted to the window.
	maxAll := make(map[string]float64)
	minWindow := make(map[string]float64)
	for _, sample := range s.telemetry {
		if !members[sample.VehicleID] {
			continue
		}
		if cur, ok := maxAll[sample.VehicleID]; !ok || sample.Odometer > cur {
			maxAll[sample.VehicleID] = sample.Odometer
		}
		if sample.Timestamp.Before(since) {
			continue
		}
		if cur, ok := minWindow[sample.VehicleID]; !ok || sample.Odometer < cur {
			minWindow[sample.VehicleID] = sample.Odometer
		}
	}

	var out []models.OdometerRange
	for vehicleID, min := range minWindow {
		out = append(out, models.OdometerRange{
			VehicleID: vehicleID,
			Max:       maxAll[vehicleID],
			WindowMin: min,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out, nil
}

// Alerts

func (s *MemoryStore) InsertAlert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vehicles[alert.VehicleID]; !ok {
		return ErrVehicleNotFound
	}
	if alert.ID == "" {
		alert.ID = s.nextID("alr")
	}
	now := time.Now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	cp := *alert
	s.alerts = append(s.alerts, &cp)
	return nil
}

func (s *MemoryStore) FindRecentSimilarAlert(ctx context.Context, vehicleID string, violationType models.ViolationType, since time.Time) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *models.Alert
	for _, alert := range s.alerts {
		if alert.VehicleID != vehicleID || alert.ViolationType != violationType {
			continue
		}
		if alert.Timestamp.Before(since) {
			continue
		}
		if best == nil || alert.Timestamp.After(best.Timestamp) {
			best = alert
		}
	}
	if best == nil {
		return nil, ErrAlertNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *MemoryStore) EscalateAlert(ctx context.Context, id string, delta int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alert := range s.alerts {
		if alert.ID == id {
			alert.Severity += delta
			alert.UpdatedAt = now
			return nil
		}
	}
	return ErrAlertNotFound
}

func (s *MemoryStore) ListAlertsByVehicle(ctx context.Context, vehicleID string, limit int) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Alert
	for _, alert := range s.alerts {
		if alert.VehicleID == vehicleID {
			cp := *alert
			out = append(out, &cp)
		}
	}
	sortAlertsDesc(out)
	return clipAlerts(out, limit), nil
}

func (s *MemoryStore) LatestAlert(ctx context.Context, vehicleID string) (*models.Alert, error) {
	alerts, err := s.ListAlertsByVehicle(ctx, vehicleID, 1)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrAlertNotFound
	}
	return alerts[0], nil
}

func (s *MemoryStore) ListAlertsByFleet(ctx context.Context, fleetID string, limit int) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)
	var out []*models.Alert
	for _, alert := range s.alerts {
		if members[alert.VehicleID] {
			cp := *alert
			out = append(out, &cp)
		}
	}
	sortAlertsDesc(out)
	return clipAlerts(out, limit), nil
}

func (s *MemoryStore) CountAlertsBySeverity(ctx context.Context, fleetID string, since time.Time) ([]models.SeverityCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)
	counts := make(map[int]int)
	for _, alert := range s.alerts {
		if members[alert.VehicleID] && !alert.Timestamp.Before(since) {
			counts[alert.Severity]++
		}
	}

	out := make([]models.SeverityCount, 0, len(counts))
	for severity, count := range counts {
		out = append(out, models.SeverityCount{Severity: severity, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Severity < out[j].Severity })
	return out, nil
}

func (s *MemoryStore) CountAlertsByType(ctx context.Context, fleetID string, since time.Time) ([]models.TypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.fleetVehicleIDs(fleetID)
	counts := make(map[models.ViolationType]int)
	for _, alert := range s.alerts {
		if members[alert.VehicleID] && !alert.Timestamp.Before(since) {
			counts[alert.ViolationType]++
		}
	}

	out := make([]models.TypeCount, 0, len(counts))
	for violationType, count := range counts {
		out = append(out, models.TypeCount{ViolationType: violationType, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ViolationType < out[j].ViolationType })
	return out, nil
}

// Snapshots

func (s *MemoryStore) UpsertSnapshot(ctx context.Context, snapshot *models.FleetAnalyticsSnapshot) (*models.FleetAnalyticsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	latest := s.latestSnapshotLocked(snapshot.FleetID)
	if latest != nil && sameCalendarDay(latest.CreatedAt.Local(), now.Local()) {
		latest.TotalVehicles = snapshot.TotalVehicles
		latest.ActiveVehicles = snapshot.ActiveVehicles
		latest.InactiveVehicles = snapshot.InactiveVehicles
		latest.AverageFuelLevel = snapshot.AverageFuelLevel
		latest.TotalDistance24h = snapshot.TotalDistance24h
		latest.AlertCount = snapshot.AlertCount
		latest.AlertCountSevere = snapshot.AlertCountSevere
		cp := *latest
		return &cp, nil
	}

	snapshot.ID = s.nextID("fas")
	snapshot.CreatedAt = now
	cp := *snapshot
	s.snapshots = append(s.snapshots, &cp)
	out := cp
	return &out, nil
}

func (s *MemoryStore) LatestSnapshot(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := s.latestSnapshotLocked(fleetID)
	if latest == nil {
		return nil, ErrNoSnapshot
	}
	cp := *latest
	return &cp, nil
}

func (s *MemoryStore) latestSnapshotLocked(fleetID string) *models.FleetAnalyticsSnapshot {
	var latest *models.FleetAnalyticsSnapshot
	for _, snapshot := range s.snapshots {
		if snapshot.FleetID != fleetID {
			continue
		}
		if latest == nil || snapshot.CreatedAt.After(latest.CreatedAt) {
			latest = snapshot
		}
	}
	return latest
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// fleetVehicleIDs must be called with at least a read lock held
func (s *MemoryStore) fleetVehicleIDs(fleetID string) map[string]bool {
	members := make(map[string]bool)
	for _, vehicle := range s.vehicles {
		if vehicle.FleetID == fleetID {
			members[vehicle.ID] = true
		}
	}
	return members
}

func sortSamplesDesc(samples []*models.TelemetrySample) {
	sort.Slice(samples, func(i, j int) bool { return samples[i].Timestamp.After(samples[j].Timestamp) })
}

func clipSamples(samples []*models.TelemetrySample, limit int) []*models.TelemetrySample {
	if limit > 0 && len(samples) > limit {
		return samples[:limit]
	}
	return samples
}

func sortAlertsDesc(alerts []*models.Alert) {
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
}

func clipAlerts(alerts []*models.Alert, limit int) []*models.Alert {
	if limit > 0 && len(alerts) > limit {
		return alerts[:limit]
	}
	return alerts
}
