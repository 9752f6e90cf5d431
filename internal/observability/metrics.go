package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "wellness",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	statsDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wellness",
		Subsystem: "stats",
		Name:      "compute_duration_seconds",
		Help:      "Time spent deriving activity stats from a user's history.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 8),
	})
	streakHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "wellness",
		Subsystem: "stats",
		Name:      "current_streak_days",
		Help:      "Distribution of current streaks returned to callers.",
		Buckets:   []float64{0, 1, 2, 3, 5, 7, 14, 30, 60, 100},
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, statsDuration, streakHistogram)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// ObserveStatsComputed records how long a stats computation took and the streak it produced.
func ObserveStatsComputed(elapsed time.Duration, streak int) {
	statsDuration.Observe(elapsed.Seconds())
	streakHistogram.Observe(float64(streak))
}
