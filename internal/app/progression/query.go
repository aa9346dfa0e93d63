package progression

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/metrics"
)

// LeaderboardCache is an optional read-through cache for rank queries.
// ok is false on a miss; the caller then reads the UserStore.
type LeaderboardCache interface {
	Top(ctx context.Context, limit, offset int) (rows []domain.RankedProgress, ok bool, err error)
	Rank(ctx context.Context, user domain.UserID) (rank int64, ok bool, err error)
}

// ProgressView is the read model returned by Progress.
type ProgressView struct {
	UserID             domain.UserID `json:"user_id"`
	TotalXP            int64         `json:"total_xp"`
	Rank               int64         `json:"rank,omitempty"`
	Streak             domain.Streak `json:"streak"`
	AchievementsEarned int           `json:"achievements_earned"`
	AchievementsTotal  int           `json:"achievements_total"`
	UpdatedAt          time.Time     `json:"updated_at"`
	// Stale is set when the ledger holds entries the record does not reflect yet.
	Stale bool `json:"stale"`
	LevelProgress
}

// Queries serves read-only projections. It never writes.
type Queries struct {
	ledger    domain.LedgerStore
	users     domain.UserStore
	evaluator *Evaluator
	cache     LeaderboardCache
	loc       *time.Location
	now       func() time.Time
	log       *zap.Logger
}

// NewQueries builds the read side sharing the coordinator's catalog and timezone.
// cache may be nil.
func NewQueries(c *Coordinator, cache LeaderboardCache) *Queries {
	return &Queries{
		ledger:    c.ledger,
		users:     c.users,
		evaluator: c.evaluator,
		cache:     cache,
		loc:       c.loc,
		now:       c.now,
		log:       c.log.Named("query"),
	}
}

// Progress returns the user's level, streak, rank and achievement counts.
func (q *Queries) Progress(ctx context.Context, user domain.UserID) (ProgressView, error) {
	rec, err := q.users.GetProgress(ctx, user)
	if err != nil {
		return ProgressView{}, err
	}
	sum, err := q.ledger.Summary(ctx, user)
	if err != nil {
		return ProgressView{}, err
	}
	if rec.Version == 0 && sum.MaxSeq == 0 {
		return ProgressView{}, &domain.Error{Op: "progress", UserID: user, Err: domain.ErrUnknownUser}
	}
	times, err := q.ledger.ActivityTimes(ctx, user)
	if err != nil {
		return ProgressView{}, err
	}
	statuses, err := q.evaluator.Statuses(ctx, user)
	if err != nil {
		return ProgressView{}, err
	}
	lp, err := DescribeLevel(rec.TotalXP)
	if err != nil {
		return ProgressView{}, err
	}

	v := ProgressView{
		UserID:            user,
		TotalXP:           rec.TotalXP,
		Streak:            CalculateStreak(times, q.now(), q.loc),
		AchievementsTotal: q.evaluator.catalog.Len(),
		UpdatedAt:         rec.UpdatedAt,
		Stale:             sum.MaxSeq > rec.AppliedSeq,
		LevelProgress:     lp,
	}
	for _, s := range statuses {
		if s.Unlocked {
			v.AchievementsEarned++
		}
	}
	if rec.Version > 0 {
		v.Rank, err = q.rank(ctx, user)
		if err != nil {
			return ProgressView{}, err
		}
	}
	return v, nil
}

func (q *Queries) rank(ctx context.Context, user domain.UserID) (int64, error) {
	if q.cache != nil {
		r, ok, err := q.cache.Rank(ctx, user)
		switch {
		case err != nil:
			metrics.LeaderboardCache.WithLabelValues("error").Inc()
			q.log.Warn("leaderboard cache rank failed", zap.String("user", string(user)), zap.Error(err))
		case ok:
			metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return r, nil
		default:
			metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		}
	}
	return q.users.Rank(ctx, user)
}

// Leaderboard returns users ordered by TotalXP, highest first.
// limit is clamped to 1..100 (default 10).
func (q *Queries) Leaderboard(ctx context.Context, limit, offset int) ([]domain.RankedProgress, error) {
	if limit <= 0 {
		limit = 10
	}
	limit = min(limit, 100)
	offset = max(offset, 0)

	if q.cache != nil {
		rows, ok, err := q.cache.Top(ctx, limit, offset)
		switch {
		case err != nil:
			metrics.LeaderboardCache.WithLabelValues("error").Inc()
			q.log.Warn("leaderboard cache read failed", zap.Error(err))
		case ok:
			metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return rows, nil
		default:
			metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		}
	}
	return q.users.Top(ctx, limit, offset)
}

// Achievements returns the catalog joined with the user's unlock state.
func (q *Queries) Achievements(ctx context.Context, user domain.UserID) ([]AchievementStatus, error) {
	return q.evaluator.Statuses(ctx, user)
}

// Catalog returns the achievement definitions.
func (q *Queries) Catalog() []domain.AchievementDef {
	return q.evaluator.catalog.Definitions()
}

// History returns the user's most recent ledger entries, newest first.
func (q *Queries) History(ctx context.Context, user domain.UserID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	return q.ledger.Recent(ctx, user, min(limit, 500))
}
