// Package metrics provides Prometheus metrics for the progression engine.
// Counters, gauges and histograms for activity intake, derived-state passes,
// achievements, the reconciler, the leaderboard cache and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "genavator"

// ─── Activity Intake ────────────────────────────────────────────────────────

// ActivitiesRecorded tracks ledger appends by activity kind.
var ActivitiesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "activities_recorded_total",
	Help:      "Activities durably appended to the ledger.",
}, []string{"kind"})

// ActivitiesRejected tracks activities refused before any write.
var ActivitiesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "activities_rejected_total",
	Help:      "Activities rejected by validation or a failed ledger append.",
}, []string{"reason"})

// DuplicateActivities tracks replays of an already-recorded idempotency key.
var DuplicateActivities = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "activities_duplicate_total",
	Help:      "Activities whose idempotency key was already in the ledger.",
})

// RecordLatency tracks end-to-end RecordActivity duration in seconds.
var RecordLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: Namespace,
	Name:      "record_latency_seconds",
	Help:      "RecordActivity duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
})

// ─── Derived State ──────────────────────────────────────────────────────────

// AchievementsUnlocked tracks unlocks by achievement ID.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "achievements_unlocked_total",
	Help:      "Achievements unlocked.",
}, []string{"achievement"})

// LevelUps tracks committed passes that raised a user's level.
var LevelUps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "level_ups_total",
	Help:      "Progress writes that increased a user's level.",
})

// MilestoneBonuses tracks milestone bonus XP granted.
var MilestoneBonuses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "milestone_bonus_xp_total",
	Help:      "Bonus XP granted for reaching milestone levels.",
})

// DegradedPasses tracks derived-state passes that failed after the ledger write.
var DegradedPasses = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "degraded_passes_total",
	Help:      "Passes where the activity was recorded but derived state is stale.",
})

// VersionConflicts tracks compare-and-swap losses on user records.
var VersionConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "version_conflicts_total",
	Help:      "Optimistic concurrency conflicts on user progress records.",
})

// InvariantWarnings tracks defensive checks that failed.
var InvariantWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "invariant_warnings_total",
	Help:      "Defensive consistency checks that failed.",
}, []string{"check"})

// ─── Reconciler ─────────────────────────────────────────────────────────────

// Rescans tracks corrective rescans by trigger (api, cli, reconciler).
var Rescans = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "rescans_total",
	Help:      "Corrective rescans run.",
}, []string{"trigger"})

// StaleUsers tracks users found lagging the ledger on the last reconcile run.
var StaleUsers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: Namespace,
	Name:      "stale_users",
	Help:      "Users whose progress lagged the ledger on the last reconcile run.",
})

// ─── Leaderboard Cache ──────────────────────────────────────────────────────

// LeaderboardCache tracks cache reads by result (hit, miss, error).
var LeaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: Namespace,
	Name:      "leaderboard_cache_total",
	Help:      "Leaderboard cache lookups by result.",
}, []string{"result"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: Namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})
