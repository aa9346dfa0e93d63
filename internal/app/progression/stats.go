package progression

import (
	"context"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// LedgerAggregator computes stats snapshots from the ledger.
type LedgerAggregator struct {
	ledger domain.LedgerStore
	loc    *time.Location
}

// NewLedgerAggregator creates an aggregator dating streaks in loc.
func NewLedgerAggregator(ledger domain.LedgerStore, loc *time.Location) *LedgerAggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &LedgerAggregator{ledger: ledger, loc: loc}
}

// Stats returns counts, the quiz average and streaks for user as of now.
// TotalXP and Level are left for the caller.
func (a *LedgerAggregator) Stats(ctx context.Context, user domain.UserID, now time.Time) (domain.StatsSnapshot, error) {
	sum, err := a.ledger.Summary(ctx, user)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	times, err := a.ledger.ActivityTimes(ctx, user)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	streak := CalculateStreak(times, now, a.loc)

	return domain.StatsSnapshot{
		UserID:           user,
		Documents:        sum.Counts[domain.ActivityDocumentUpload],
		ChatTurns:        sum.Counts[domain.ActivityChatMessage],
		Quizzes:          sum.Counts[domain.ActivityQuizCompleted],
		ScoredQuizzes:    sum.ScoredQuiz,
		Logins:           sum.Counts[domain.ActivityLogin],
		AverageQuizScore: sum.AverageQuizScore(),
		CurrentStreak:    streak.Current,
		LongestStreak:    streak.Longest,
		LastActivity:     streak.LastActivity,
		TakenAt:          now,
	}, nil
}
