package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Counters for the telemetry pipeline, exposed in Prometheus text format.
var (
	TelemetryIngested   atomic.Int64
	TelemetryRejected   atomic.Int64
	AlertsCreated       atomic.Int64
	AlertsEscalated     atomic.Int64
	AggregationRuns     atomic.Int64
	AggregationFailures atomic.Int64
	AggregationSkipped  atomic.Int64
	CacheHits           atomic.Int64
	CacheMisses         atomic.Int64
)

// Handler serves the current counter values in Prometheus exposition format
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		writeCounter(w, "fleetsense_telemetry_ingested_total", "Telemetry samples accepted and stored", TelemetryIngested.Load())
		writeCounter(w, "fleetsense_telemetry_rejected_total", "Telemetry samples rejected by validation", TelemetryRejected.Load())
		writeCounter(w, "fleetsense_alerts_created_total", "Alerts created by the alert engine", AlertsCreated.Load())
		writeCounter(w, "fleetsense_alerts_escalated_total", "Alerts escalated instead of duplicated", AlertsEscalated.Load())
		writeCounter(w, "fleetsense_aggregation_runs_total", "Completed fleet analytics aggregation passes", AggregationRuns.Load())
		writeCounter(w, "fleetsense_aggregation_failures_total", "Per-fleet aggregation failures", AggregationFailures.Load())
		writeCounter(w, "fleetsense_aggregation_skipped_total", "Scheduler ticks skipped because a pass was running", AggregationSkipped.Load())
		writeCounter(w, "fleetsense_cache_hits_total", "Analytics snapshot cache hits", CacheHits.Load())
		writeCounter(w, "fleetsense_cache_misses_total", "Analytics snapshot cache misses", CacheMisses.Load())
	})
}

func writeCounter(w http.ResponseWriter, name, help string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

// Reset zeroes all counters. Used by tests.
func Reset() {
	TelemetryIngested.Store(0)
	TelemetryRejected.Store(0)
	AlertsCreated.Store(0)
	AlertsEscalated.Store(0)
	AggregationRuns.Store(0)
	AggregationFailures.Store(0)
	AggregationSkipped.Store(0)
	CacheHits.Store(0)
	CacheMisses.Store(0)
}
