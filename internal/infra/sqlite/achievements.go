package sqlite

import (
	"context"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Achievements ───────────────────────────────────────────────────────────

// Unlock records an achievement as unlocked.
// Returns false if already unlocked (idempotent).
func (d *DB) Unlock(ctx context.Context, u domain.UnlockedAchievement) (bool, error) {
	result, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO unlocked_achievements (user_id, achievement_id, xp_reward, unlocked_at)
		 VALUES (?, ?, ?, ?)`,
		string(u.UserID), u.AchievementID, u.XPReward, u.UnlockedAt.UnixMilli(),
	)
	if err != nil {
		return false, domain.StoreError("achievements.unlock", err)
	}
	n, err := affected("achievements.unlock", result)
	if err != nil {
		return false, err
	}
	return n > 0, nil // true = newly unlocked
}

// ListUnlocked returns the user's unlocked achievements, oldest first.
func (d *DB) ListUnlocked(ctx context.Context, user domain.UserID) ([]domain.UnlockedAchievement, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT achievement_id, xp_reward, unlocked_at FROM unlocked_achievements
		 WHERE user_id = ? ORDER BY unlocked_at, achievement_id`, string(user))
	if err != nil {
		return nil, domain.StoreError("achievements.list", err)
	}
	defer rows.Close()

	var out []domain.UnlockedAchievement
	for rows.Next() {
		a := domain.UnlockedAchievement{UserID: user}
		var unlockedAt int64
		if err := rows.Scan(&a.AchievementID, &a.XPReward, &unlockedAt); err != nil {
			return nil, domain.StoreError("achievements.list", err)
		}
		a.UnlockedAt = time.UnixMilli(unlockedAt)
		out = append(out, a)
	}
	return out, domain.StoreError("achievements.list", rows.Err())
}

// RewardTotal sums the XP rewards of the user's unlocks.
func (d *DB) RewardTotal(ctx context.Context, user domain.UserID) (int64, error) {
	var total int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(xp_reward), 0) FROM unlocked_achievements WHERE user_id = ?`,
		string(user)).Scan(&total)
	return total, domain.StoreError("achievements.rewards", err)
}
