package domain

import (
	"testing"
)

func TestPredicate_Eval(t *testing.T) {
	snap := StatsSnapshot{
		Documents:        12,
		ChatTurns:        3,
		Quizzes:          6,
		ScoredQuizzes:    5,
		AverageQuizScore: 92.5,
		Level:            4,
		TotalXP:          350,
		CurrentStreak:    2,
		LongestStreak:    9,
	}

	tests := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"count met", CountAtLeast(MetricDocuments, 10), true},
		{"count exact", CountAtLeast(MetricChatTurns, 3), true},
		{"count short", CountAtLeast(MetricChatTurns, 4), false},
		{"level", CountAtLeast(MetricLevel, 5), false},
		{"total xp", CountAtLeast(MetricTotalXP, 350), true},
		{"score met", ScoreAtLeast(90, 5), true},
		{"score too few quizzes", ScoreAtLeast(90, 6), false},
		{"score too low", ScoreAtLeast(95, 1), false},
		{"current streak", StreakAtLeast(3), false},
		{"longest streak", LongestStreakAtLeast(7), true},
		{"all", AllOf(CountAtLeast(MetricDocuments, 5), ScoreAtLeast(90, 5)), true},
		{"all one fails", AllOf(CountAtLeast(MetricDocuments, 5), StreakAtLeast(3)), false},
		{"any", AnyOf(StreakAtLeast(3), CountAtLeast(MetricQuizzes, 6)), true},
		{"any none", AnyOf(StreakAtLeast(3), CountAtLeast(MetricQuizzes, 7)), false},
		{"empty all", Predicate{Kind: PredicateAll}, false},
		{"unknown kind", Predicate{Kind: "weird"}, false},
		{"unknown metric", Predicate{Kind: PredicateCount, Metric: "karma"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Eval(snap); got != tt.want {
				t.Errorf("%s.Eval() = %v, want %v", tt.p, got, tt.want)
			}
		})
	}
}

func TestPredicate_ScoreNeedsAQuiz(t *testing.T) {
	// A zero average must not satisfy a zero threshold without any quiz.
	if ScoreAtLeast(0, 0).Eval(StatsSnapshot{}) {
		t.Error("score predicate held with no scored quizzes")
	}
}

func TestPredicate_Validate(t *testing.T) {
	valid := []Predicate{
		CountAtLeast(MetricLogins, 10),
		ScoreAtLeast(100, 3),
		StreakAtLeast(7),
		LongestStreakAtLeast(14),
		AllOf(CountAtLeast(MetricDocuments, 1), AnyOf(StreakAtLeast(1), ScoreAtLeast(50, 1))),
	}
	for _, p := range valid {
		if err := p.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", p, err)
		}
	}

	invalid := map[string]Predicate{
		"unknown kind":       {Kind: "sometimes"},
		"unknown metric":     {Kind: PredicateCount, Metric: "karma"},
		"score above 100":    ScoreAtLeast(101, 1),
		"negative threshold": CountAtLeast(MetricDocuments, -1),
		"streak metric":      {Kind: PredicateStreak, Metric: MetricDocuments},
		"empty any":          {Kind: PredicateAny},
		"bad child":          AllOf(CountAtLeast(MetricDocuments, 1), Predicate{Kind: "nope"}),
	}
	for name, p := range invalid {
		if err := p.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestPredicate_String(t *testing.T) {
	p := AllOf(CountAtLeast(MetricDocuments, 5), AnyOf(StreakAtLeast(3), ScoreAtLeast(90, 0)))
	want := "(documents >= 5 AND (current_streak >= 3 OR avg_quiz_score >= 90 (min 1 quizzes)))"
	if got := p.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
