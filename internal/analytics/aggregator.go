// Package analytics recomputes per-fleet statistics on a schedule and
// maintains one analytics snapshot row per fleet per calendar day.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/cache"
	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/metrics"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

// Aggregator computes fleet-level statistics from telemetry and alerts
type Aggregator struct {
	store storage.Store
	cache *cache.Cache
	cfg   config.AnalyticsConfig
	log   zerolog.Logger
}

// NewAggregator creates an aggregator backed by the given store and cache
func NewAggregator(store storage.Store, snapshotCache *cache.Cache, cfg config.AnalyticsConfig, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		cache: snapshotCache,
		cfg:   cfg,
		log:   log.With().Str("component", "analytics").Logger(),
	}
}

// RunOnce recomputes statistics for every fleet. A failure on one fleet is
// logged and the remaining fleets are still processed; the returned error
// only reflects the inability to list fleets at all.
func (a *Aggregator) RunOnce(ctx context.Context) error {
	fleets, err := a.store.ListFleets(ctx)
	if err != nil {
		return fmt.Errorf("list fleets: %w", err)
	}

	for _, fleet := range fleets {
		if _, err := a.RefreshFleet(ctx, fleet.ID); err != nil {
			metrics.AggregationFailures.Add(1)
			a.log.Error().Err(err).Str("fleet_id", fleet.ID).Msg("fleet aggregation failed")
		}
	}

	metrics.AggregationRuns.Add(1)
	a.log.Debug().Int("fleets", len(fleets)).Msg("aggregation pass complete")
	return nil
}

// RefreshFleet recomputes and persists the snapshot for one fleet
func (a *Aggregator) RefreshFleet(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	computed, err := a.computeFleet(ctx, fleetID)
	if err != nil {
		return nil, err
	}

	saved, err := a.store.UpsertSnapshot(ctx, computed)
	if err != nil {
		return nil, fmt.Errorf("upsert snapshot: %w", err)
	}

	if err := a.cache.SetSnapshot(ctx, saved); err != nil {
		a.log.Warn().Err(err).Str("fleet_id", fleetID).Msg("failed to cache snapshot")
	}
	return saved, nil
}

func (a *Aggregator) computeFleet(ctx context.Context, fleetID string) (*models.FleetAnalyticsSnapshot, error) {
	since := time.Now().UTC().Add(-a.cfg.Lookback)

	vehicles, err := a.store.ListVehiclesByFleet(ctx, fleetID)
	if err != nil {
		return nil, fmt.Errorf("list fleet vehicles: %w", err)
	}

	activeAll, err := a.store.ListActiveVehicles(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list active vehicles: %w", err)
	}
	members := make(map[string]bool, len(vehicles))
	for _, vehicle := range vehicles {
		members[vehicle.ID] = true
	}
	active := 0
	for _, vehicle := range activeAll {
		if members[vehicle.ID] {
			active++
		}
	}

	avgFuel, err := a.store.AverageFuelLevel(ctx, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("average fuel level: %w", err)
	}

	// Distance per vehicle is the all-time odometer max minus the windowed
	// min; vehicles with no reading in the window contribute nothing. The
	// max being unbounded while the min is windowed is deliberate.
	ranges, err := a.store.OdometerRanges(ctx, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("odometer ranges: %w", err)
	}
	var totalDistance float64
	for _, r := range ranges {
		totalDistance += r.Max - r.WindowMin
	}

	severityCounts, err := a.store.CountAlertsBySeverity(ctx, fleetID, since)
	if err != nil {
		return nil, fmt.Errorf("count alerts: %w", err)
	}
	alertCount := 0
	severeCount := 0
	for _, c := range severityCounts {
		alertCount += c.Count
		if c.Severity >= a.cfg.SevereCutoff {
			severeCount += c.Count
		}
	}

	return &models.FleetAnalyticsSnapshot{
		FleetID:          fleetID,
		TotalVehicles:    len(vehicles),
		ActiveVehicles:   active,
		InactiveVehicles: len(vehicles) - active,
		AverageFuelLevel: avgFuel,
		TotalDistance24h: totalDistance,
		AlertCount:       alertCount,
		AlertCountSevere: severeCount,
	}, nil
}

// GetFleetAnalytics returns the latest snapshot for a fleet, recomputing
// it first when the stored one is older than maxStaleness (<= 0 selects
// the configured default). Staleness is judged on the row's creation
// time, matching the daily-row lifecycle.
func (a *Aggregator) GetFleetAnalytics(ctx context.Context, fleetID string, maxStaleness time.Duration) (*models.FleetAnalyticsSnapshot, error) {
	if _, err := a.store.GetFleet(ctx, fleetID); err != nil {
		return nil, err
	}
	if maxStaleness <= 0 {
		maxStaleness = a.cfg.DefaultStaleness
	}

	if snapshot, err := a.cache.GetSnapshot(ctx, fleetID); err == nil {
		if time.Since(snapshot.CreatedAt) <= maxStaleness {
			return snapshot, nil
		}
	}

	snapshot, err := a.store.LatestSnapshot(ctx, fleetID)
	switch {
	case errors.Is(err, storage.ErrNoSnapshot):
		return a.RefreshFleet(ctx, fleetID)
	case err != nil:
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	if time.Since(snapshot.CreatedAt) > maxStaleness {
		return a.RefreshFleet(ctx, fleetID)
	}

	if err := a.cache.SetSnapshot(ctx, snapshot); err != nil {
		a.log.Warn().Err(err).Str("fleet_id", fleetID).Msg("failed to cache snapshot")
	}
	return snapshot, nil
}
