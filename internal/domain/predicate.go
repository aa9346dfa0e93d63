package domain

import (
	"fmt"
	"strings"
)

// PredicateKind tags the variant held by a Predicate.
type PredicateKind string

const (
	PredicateCount  PredicateKind = "count"  // Metric >= Threshold
	PredicateScore  PredicateKind = "score"  // AverageQuizScore >= Threshold, ScoredQuizzes >= MinQuizzes
	PredicateStreak PredicateKind = "streak" // streak Metric >= Threshold
	PredicateAll    PredicateKind = "all"    // every child holds
	PredicateAny    PredicateKind = "any"    // at least one child holds
)

// Metric names a numeric field of StatsSnapshot.
type Metric string

const (
	MetricDocuments     Metric = "documents"
	MetricChatTurns     Metric = "chat_turns"
	MetricQuizzes       Metric = "quizzes"
	MetricLogins        Metric = "logins"
	MetricLevel         Metric = "level"
	MetricTotalXP       Metric = "total_xp"
	MetricCurrentStreak Metric = "current_streak"
	MetricLongestStreak Metric = "longest_streak"
)

// Predicate is a qualifying condition over a single StatsSnapshot.
// It never sees unlock state, so achievements in one pass stay independent.
type Predicate struct {
	Kind       PredicateKind `json:"kind" toml:"kind"`
	Metric     Metric        `json:"metric,omitempty" toml:"metric,omitempty"`
	Threshold  float64       `json:"threshold,omitempty" toml:"threshold,omitempty"`
	MinQuizzes int64         `json:"min_quizzes,omitempty" toml:"min_quizzes,omitempty"`
	Children   []Predicate   `json:"children,omitempty" toml:"children,omitempty"`
}

// CountAtLeast holds when the counter metric reaches n.
func CountAtLeast(m Metric, n int64) Predicate {
	return Predicate{Kind: PredicateCount, Metric: m, Threshold: float64(n)}
}

// ScoreAtLeast holds when the average quiz score reaches avg over at least
// minQuizzes scored quizzes.
func ScoreAtLeast(avg float64, minQuizzes int64) Predicate {
	return Predicate{Kind: PredicateScore, Threshold: avg, MinQuizzes: minQuizzes}
}

// StreakAtLeast holds when the current streak reaches days.
func StreakAtLeast(days int) Predicate {
	return Predicate{Kind: PredicateStreak, Metric: MetricCurrentStreak, Threshold: float64(days)}
}

// LongestStreakAtLeast holds when the best streak ever reaches days.
func LongestStreakAtLeast(days int) Predicate {
	return Predicate{Kind: PredicateStreak, Metric: MetricLongestStreak, Threshold: float64(days)}
}

// AllOf holds when every child holds.
func AllOf(children ...Predicate) Predicate {
	return Predicate{Kind: PredicateAll, Children: children}
}

// AnyOf holds when at least one child holds.
func AnyOf(children ...Predicate) Predicate {
	return Predicate{Kind: PredicateAny, Children: children}
}

// Eval reports whether the predicate holds for s.
func (p Predicate) Eval(s StatsSnapshot) bool {
	switch p.Kind {
	case PredicateCount:
		v, ok := counterValue(s, p.Metric)
		return ok && v >= p.Threshold
	case PredicateScore:
		minQuizzes := p.MinQuizzes
		if minQuizzes < 1 {
			minQuizzes = 1
		}
		return s.ScoredQuizzes >= minQuizzes && s.AverageQuizScore >= p.Threshold
	case PredicateStreak:
		switch p.Metric {
		case MetricLongestStreak:
			return float64(s.LongestStreak) >= p.Threshold
		default:
			return float64(s.CurrentStreak) >= p.Threshold
		}
	case PredicateAll:
		for _, c := range p.Children {
			if !c.Eval(s) {
				return false
			}
		}
		return len(p.Children) > 0
	case PredicateAny:
		for _, c := range p.Children {
			if c.Eval(s) {
				return true
			}
		}
		return false
	}
	return false
}

// Validate checks that the predicate is well formed.
func (p Predicate) Validate() error {
	switch p.Kind {
	case PredicateCount:
		if _, ok := counterValue(StatsSnapshot{}, p.Metric); !ok {
			return fmt.Errorf("count predicate: unknown metric %q", p.Metric)
		}
	case PredicateScore:
		if p.Threshold < 0 || p.Threshold > 100 {
			return fmt.Errorf("score predicate: threshold %.1f outside 0-100", p.Threshold)
		}
	case PredicateStreak:
		if p.Metric != "" && p.Metric != MetricCurrentStreak && p.Metric != MetricLongestStreak {
			return fmt.Errorf("streak predicate: unknown metric %q", p.Metric)
		}
	case PredicateAll, PredicateAny:
		if len(p.Children) == 0 {
			return fmt.Errorf("%s predicate: no children", p.Kind)
		}
		for i, c := range p.Children {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("%s predicate child %d: %w", p.Kind, i, err)
			}
		}
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	if p.Threshold < 0 {
		return fmt.Errorf("%s predicate: negative threshold", p.Kind)
	}
	return nil
}

// String renders the predicate for CLI and logs.
func (p Predicate) String() string {
	switch p.Kind {
	case PredicateCount, PredicateStreak:
		m := p.Metric
		if m == "" {
			m = MetricCurrentStreak
		}
		return fmt.Sprintf("%s >= %g", m, p.Threshold)
	case PredicateScore:
		return fmt.Sprintf("avg_quiz_score >= %g (min %d quizzes)", p.Threshold, max(p.MinQuizzes, 1))
	case PredicateAll, PredicateAny:
		parts := make([]string, len(p.Children))
		for i, c := range p.Children {
			parts[i] = c.String()
		}
		sep := " AND "
		if p.Kind == PredicateAny {
			sep = " OR "
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
	return string(p.Kind)
}

func counterValue(s StatsSnapshot, m Metric) (float64, bool) {
	switch m {
	case MetricDocuments:
		return float64(s.Documents), true
	case MetricChatTurns:
		return float64(s.ChatTurns), true
	case MetricQuizzes:
		return float64(s.Quizzes), true
	case MetricLogins:
		return float64(s.Logins), true
	case MetricLevel:
		return float64(s.Level), true
	case MetricTotalXP:
		return float64(s.TotalXP), true
	case MetricCurrentStreak:
		return float64(s.CurrentStreak), true
	case MetricLongestStreak:
		return float64(s.LongestStreak), true
	}
	return 0, false
}
