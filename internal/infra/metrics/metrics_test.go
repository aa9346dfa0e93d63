package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestActivityMetrics_Registered(t *testing.T) {
	ActivitiesRecorded.WithLabelValues("document_upload").Inc()
	ActivitiesRejected.WithLabelValues("invalid").Inc()
	DuplicateActivities.Inc()
	RecordLatency.Observe(0.02)

	names := gatheredNames(t)
	for _, name := range []string{
		"genavator_activities_recorded_total",
		"genavator_activities_rejected_total",
		"genavator_activities_duplicate_total",
		"genavator_record_latency_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestDerivedStateMetrics(t *testing.T) {
	before := testutil.ToFloat64(AchievementsUnlocked.WithLabelValues("first_upload"))
	AchievementsUnlocked.WithLabelValues("first_upload").Inc()
	if got := testutil.ToFloat64(AchievementsUnlocked.WithLabelValues("first_upload")); got != before+1 {
		t.Errorf("achievements_unlocked = %v, want %v", got, before+1)
	}

	MilestoneBonuses.Add(50)
	LevelUps.Inc()
	DegradedPasses.Inc()
	VersionConflicts.Inc()
	InvariantWarnings.WithLabelValues("stored_level").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"genavator_milestone_bonus_xp_total",
		"genavator_level_ups_total",
		"genavator_degraded_passes_total",
		"genavator_version_conflicts_total",
		"genavator_invariant_warnings_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestReconcilerAndHealthGauges(t *testing.T) {
	StaleUsers.Set(4)
	if got := testutil.ToFloat64(StaleUsers); got != 4 {
		t.Errorf("stale_users = %v, want 4", got)
	}

	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthCheckStatus.WithLabelValues("redis").Set(0)
	if got := testutil.ToFloat64(HealthCheckStatus.WithLabelValues("redis")); got != 0 {
		t.Errorf("health_check_status{redis} = %v, want 0", got)
	}

	Rescans.WithLabelValues("reconciler").Inc()
	LeaderboardCache.WithLabelValues("hit").Inc()
	names := gatheredNames(t)
	if !names["genavator_rescans_total"] || !names["genavator_leaderboard_cache_total"] {
		t.Error("reconciler or cache metrics not registered")
	}
}
