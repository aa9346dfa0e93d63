package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── User Progress ──────────────────────────────────────────────────────────

// GetProgress returns the stored record, or a fresh Version 0 record.
func (d *DB) GetProgress(ctx context.Context, user domain.UserID) (domain.UserProgress, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT user_id, total_xp, level, version, applied_seq, updated_at
		 FROM user_progress WHERE user_id = ?`, string(user))
	p, err := scanProgress(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewUserProgress(user), nil
	}
	if err != nil {
		return p, domain.StoreError("progress.get", err)
	}
	return p, nil
}

// CompareAndSwap writes next if the stored version is expected.
// expected == 0 inserts and fails if a row already exists.
func (d *DB) CompareAndSwap(ctx context.Context, next domain.UserProgress, expected int64) error {
	var (
		result sql.Result
		err    error
	)
	if expected == 0 {
		result, err = d.db.ExecContext(ctx,
			`INSERT INTO user_progress (user_id, total_xp, level, version, applied_seq, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?)
			 ON CONFLICT(user_id) DO NOTHING`,
			string(next.UserID), next.TotalXP, next.Level, next.AppliedSeq, next.UpdatedAt.UnixMilli())
	} else {
		result, err = d.db.ExecContext(ctx,
			`UPDATE user_progress
			 SET total_xp = ?, level = ?, version = version + 1, applied_seq = ?, updated_at = ?
			 WHERE user_id = ? AND version = ?`,
			next.TotalXP, next.Level, next.AppliedSeq, next.UpdatedAt.UnixMilli(),
			string(next.UserID), expected)
	}
	if err != nil {
		return domain.StoreError("progress.cas", err)
	}
	n, err := affected("progress.cas", result)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// Top returns records ordered by total XP descending, then user ID.
func (d *DB) Top(ctx context.Context, limit, offset int) ([]domain.RankedProgress, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT user_id, total_xp, level, version, applied_seq, updated_at
		 FROM user_progress ORDER BY total_xp DESC, user_id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, domain.StoreError("progress.top", err)
	}
	defer rows.Close()

	var out []domain.RankedProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, domain.StoreError("progress.top", err)
		}
		out = append(out, domain.RankedProgress{Rank: int64(offset + len(out) + 1), UserProgress: p})
	}
	return out, domain.StoreError("progress.top", rows.Err())
}

// Rank returns the user's 1-based position in Top order.
func (d *DB) Rank(ctx context.Context, user domain.UserID) (int64, error) {
	p, err := d.GetProgress(ctx, user)
	if err != nil {
		return 0, err
	}
	if p.Version == 0 {
		return 0, domain.ErrUnknownUser
	}
	var ahead int64
	err = d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_progress
		 WHERE total_xp > ? OR (total_xp = ? AND user_id < ?)`,
		p.TotalXP, p.TotalXP, string(user)).Scan(&ahead)
	if err != nil {
		return 0, domain.StoreError("progress.rank", err)
	}
	return ahead + 1, nil
}

// Count returns the number of stored records.
func (d *DB) Count(ctx context.Context) (int64, error) {
	var n int64
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&n)
	return n, domain.StoreError("progress.count", err)
}

// StaleUsers lists users with ledger entries newer than their applied_seq,
// including users that have no record yet.
func (d *DB) StaleUsers(ctx context.Context, limit int) ([]domain.UserID, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT l.user_id
		 FROM ledger l LEFT JOIN user_progress p ON p.user_id = l.user_id
		 GROUP BY l.user_id
		 HAVING MAX(l.seq) > COALESCE(MAX(p.applied_seq), 0)
		 ORDER BY l.user_id LIMIT ?`, limit)
	if err != nil {
		return nil, domain.StoreError("progress.stale", err)
	}
	defer rows.Close()

	var users []domain.UserID
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, domain.StoreError("progress.stale", err)
		}
		users = append(users, domain.UserID(u))
	}
	return users, domain.StoreError("progress.stale", rows.Err())
}

func scanProgress(s scanner) (domain.UserProgress, error) {
	var (
		p         domain.UserProgress
		user      string
		updatedAt int64
	)
	if err := s.Scan(&user, &p.TotalXP, &p.Level, &p.Version, &p.AppliedSeq, &updatedAt); err != nil {
		return p, err
	}
	p.UserID = domain.UserID(user)
	p.UpdatedAt = time.UnixMilli(updatedAt)
	return p, nil
}
