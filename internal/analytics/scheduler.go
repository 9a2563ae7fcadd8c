package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/savegress/fleetsense/internal/metrics"
)

// Scheduler runs the aggregator on a fixed interval. It is owned by the
// process lifecycle: started once at boot and stopped on shutdown. Ticks
// that arrive while a pass is still running are skipped, never queued.
type Scheduler struct {
	aggregator *Aggregator
	interval   time.Duration
	log        zerolog.Logger

	running sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
}

// NewScheduler creates a scheduler that invokes the aggregator every interval
func NewScheduler(aggregator *Aggregator, interval time.Duration, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		aggregator: aggregator,
		interval:   interval,
		log:        log.With().Str("component", "analytics_scheduler").Logger(),
	}
}

// Start launches the tick loop. It returns immediately; the loop exits
// when ctx is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info().Dur("interval", s.interval).Msg("analytics scheduler started")
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("analytics scheduler stopped")
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// tick runs one aggregation pass unless the previous one is still going
func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		metrics.AggregationSkipped.Add(1)
		s.log.Warn().Msg("previous aggregation pass still running, skipping tick")
		return
	}
	defer s.running.Unlock()

	if err := s.aggregator.RunOnce(ctx); err != nil {
		s.log.Error().Err(err).Msg("aggregation pass failed")
	}
}

// Stop cancels the loop and waits for the current pass to finish
func (s *Scheduler) Stop() {
	if s.stop == nil {
		return
	}
	s.stop()
	<-s.done
}
