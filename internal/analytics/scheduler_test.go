package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/cache"
	"github.com/savegress/fleetsense/internal/config"
	"github.com/savegress/fleetsense/internal/storage"
	"github.com/savegress/fleetsense/pkg/models"
)

func TestSchedulerRunsAndStops(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	fleet := &models.Fleet{Name: "Scheduled Fleet", Type: models.FleetCorporate}
	if err := store.CreateFleet(ctx, fleet); err != nil {
		t.Fatalf("CreateFleet: %v", err)
	}

	agg := NewAggregator(store, cache.New(ctx, config.CacheConfig{}), testAnalyticsConfig(), zerolog.Nop())
	scheduler := NewScheduler(agg, 10*time.Millisecond, zerolog.Nop())

	scheduler.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		if _, err := store.LatestSnapshot(ctx, fleet.ID); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never produced a snapshot")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Stop must return promptly and be safe to observe after.
	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}

func TestSchedulerStopWithoutStart(t *testing.T) {
	agg := NewAggregator(storage.NewMemoryStore(), cache.New(context.Background(), config.CacheConfig{}), testAnalyticsConfig(), zerolog.Nop())
	scheduler := NewScheduler(agg, time.Minute, zerolog.Nop())
	scheduler.Stop() // must be a no-op
}
