// Package alerts derives violation alerts from incoming telemetry samples.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/metrics"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

// Engine evaluates telemetry samples against tiered thresholds and creates
// or escalates alerts. Evaluation never reports errors to the ingestion
// path: storage failures are logged and that signal's evaluation abandoned.
type Engine struct {
	store storage.Store
	cfg   config.AlertsConfig
	log   zerolog.Logger

	// keyLocks serializes check-then-write per (vehicle, violation kind) so
	// concurrent samples escalate one alert instead of racing to create two.
	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// NewEngine creates an alert engine backed by the given store
func NewEngine(store storage.Store, cfg config.AlertsConfig, log zerolog.Logger) *Engine {
	return &Engine{
		store:    store,
		cfg:      cfg,
		log:      log.With().Str("component", "alert_engine").Logger(),
		keyLocks: make(map[string]*sync.Mutex),
	}
}

// EvaluateSample evaluates one sample. Speed and fuel level are checked
// independently, so a single sample may produce both an Overspeeding and a
// Low Fuel alert.
func (e *Engine) EvaluateSample(ctx context.Context, vehicle *models.Vehicle, sample *models.TelemetrySample) {
	if tier := firstCrossedTier(sample.Speed, e.cfg.SpeedThresholds, above); tier >= 0 {
		description := fmt.Sprintf("Overspeeding detected: %g km/h (Threshold: %g km/h)",
			sample.Speed, e.cfg.SpeedThresholds[tier])
		e.raise(ctx, vehicle, sample, models.ViolationOverspeeding, tier, description)
	}

	if tier := firstCrossedTier(sample.FuelLevel, e.cfg.FuelThresholds, below); tier >= 0 {
		description := fmt.Sprintf("Low fuel level: %g%% (Threshold: %g%%)",
			sample.FuelLevel, e.cfg.FuelThresholds[tier])
		e.raise(ctx, vehicle, sample, models.ViolationLowFuel, tier, description)
	}
}

type comparison int

const (
	above comparison = iota
	below
)

// firstCrossedTier scans the tier list in order and returns the index of
// the first tier whose condition holds, or -1 if none does. The scan stops
// at the first match on purpose: a sample far past the most severe tier is
// still scored by the lowest tier it crosses. The lists are validated at
// config load so the ordering produces sensible severities.
func firstCrossedTier(value float64, thresholds []float64, cmp comparison) int {
	for i, threshold := range thresholds {
		switch cmp {
		case above:
			if value > threshold {
				return i
			}
		case below:
			if value < threshold {
				return i
			}
		}
	}
	return -1
}

// raise creates a new alert for the crossed tier, or escalates a recent
// similar one. The severity contribution of tier index i is i+1; escalation
// adds it to the existing severity rather than replacing it.
func (e *Engine) raise(ctx context.Context, vehicle *models.Vehicle, sample *models.TelemetrySample, violationType models.ViolationType, tier int, description string) {
	contribution := tier + 1
	now := time.Now().UTC()

	unlock := e.lockKey(vehicle.ID, violationType)
	defer unlock()

	existing, err := e.store.FindRecentSimilarAlert(ctx, vehicle.ID, violationType, now.Add(-e.cfg.DedupWindow))
	switch {
	case err == nil:
		if err := e.store.EscalateAlert(ctx, existing.ID, contribution, now); err != nil {
			e.log.Error().Err(err).
				Str("vehicle_id", vehicle.ID).
				Str("violation_type", string(violationType)).
				Msg("failed to escalate alert")
			return
		}
		metrics.AlertsEscalated.Add(1)
		e.log.Info().
			Str("vehicle_id", vehicle.ID).
			Str("violation_type", string(violationType)).
			Int("severity", existing.Severity+contribution).
			Msg("alert escalated")

	case errors.Is(err, storage.ErrAlertNotFound):
		snapshot, err := json.Marshal(sample)
		if err != nil {
			e.log.Error().Err(err).Str("vehicle_id", vehicle.ID).Msg("failed to serialize telemetry snapshot")
			snapshot = nil
		}
		alert := &models.Alert{
			AlertID:           uuid.New().String(),
			VehicleID:         vehicle.ID,
			ViolationType:     violationType,
			Severity:          contribution,
			Description:       description,
			TelemetrySnapshot: snapshot,
			Timestamp:         sample.Timestamp,
		}
		if err := e.store.InsertAlert(ctx, alert); err != nil {
			e.log.Error().Err(err).
				Str("vehicle_id", vehicle.ID).
				Str("violation_type", string(violationType)).
				Msg("failed to create alert")
			return
		}
		metrics.AlertsCreated.Add(1)
		e.log.Info().
			Str("vehicle_id", vehicle.ID).
			Str("violation_type", string(violationType)).
			Int("severity", contribution).
			Msg("alert created")

	default:
		e.log.Error().Err(err).
			Str("vehicle_id", vehicle.ID).
			Str("violation_type", string(violationType)).
			Msg("failed to query recent alerts")
	}
}

func (e *Engine) lockKey(vehicleID string, violationType models.ViolationType) func() {
	key := vehicleID + "|" + string(violationType)

	e.mu.Lock()
	lock, ok := e.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.keyLocks[key] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
