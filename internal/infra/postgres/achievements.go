package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// Unlock records an achievement. Returns false if it was already unlocked.
func (s *Store) Unlock(ctx context.Context, u domain.UnlockedAchievement) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO unlocked_achievements (user_id, achievement_id, xp_reward, unlocked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, achievement_id) DO NOTHING`,
		string(u.UserID), u.AchievementID, u.XPReward, u.UnlockedAt.UTC())
	if err != nil {
		return false, domain.StoreError("achievements.unlock", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnlocked returns the user's unlocked achievements, oldest first.
func (s *Store) ListUnlocked(ctx context.Context, user domain.UserID) ([]domain.UnlockedAchievement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT achievement_id, xp_reward, unlocked_at FROM unlocked_achievements
		 WHERE user_id = $1 ORDER BY unlocked_at, achievement_id`, string(user))
	if err != nil {
		return nil, domain.StoreError("achievements.list", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UnlockedAchievement, error) {
		a := domain.UnlockedAchievement{UserID: user}
		err := r.Scan(&a.AchievementID, &a.XPReward, &a.UnlockedAt)
		return a, err
	})
	return out, domain.StoreError("achievements.list", err)
}

// RewardTotal sums the XP rewards of the user's unlocks.
func (s *Store) RewardTotal(ctx context.Context, user domain.UserID) (int64, error) {
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(xp_reward), 0)::BIGINT FROM unlocked_achievements WHERE user_id = $1`,
		string(user)).Scan(&total)
	return total, domain.StoreError("achievements.rewards", err)
}
