package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── User Progress ──────────────────────────────────────────────────────────

const progressColumns = `user_id, total_xp, level, version, applied_seq, updated_at`

// GetProgress returns the stored record, or a fresh Version 0 record.
func (s *Store) GetProgress(ctx context.Context, user domain.UserID) (domain.UserProgress, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM user_progress WHERE user_id = $1`, string(user))
	p, err := scanProgress(row)
	if isNoRows(err) {
		return domain.NewUserProgress(user), nil
	}
	if err != nil {
		return p, domain.StoreError("progress.get", err)
	}
	return p, nil
}

// CompareAndSwap writes next if the stored version is expected.
func (s *Store) CompareAndSwap(ctx context.Context, next domain.UserProgress, expected int64) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expected == 0 {
		tag, err = s.pool.Exec(ctx,
			`INSERT INTO user_progress (`+progressColumns+`)
			 VALUES ($1, $2, $3, 1, $4, $5)
			 ON CONFLICT (user_id) DO NOTHING`,
			string(next.UserID), next.TotalXP, next.Level, next.AppliedSeq, next.UpdatedAt.UTC())
	} else {
		tag, err = s.pool.Exec(ctx,
			`UPDATE user_progress
			 SET total_xp = $1, level = $2, version = version + 1, applied_seq = $3, updated_at = $4
			 WHERE user_id = $5 AND version = $6`,
			next.TotalXP, next.Level, next.AppliedSeq, next.UpdatedAt.UTC(), string(next.UserID), expected)
	}
	if err != nil {
		return domain.StoreError("progress.cas", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVersionConflict
	}
	return nil
}

// Top returns records ordered by total XP descending, then user ID.
func (s *Store) Top(ctx context.Context, limit, offset int) ([]domain.RankedProgress, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+progressColumns+` FROM user_progress
		 ORDER BY total_xp DESC, user_id ASC LIMIT $1 OFFSET $2`, limit, offset)
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
func (s *Store) Rank(ctx context.Context, user domain.UserID) (int64, error) {
	var rank int64
	err := s.pool.QueryRow(ctx,
		`SELECT 1 + (SELECT COUNT(*) FROM user_progress o
		             WHERE o.total_xp > p.total_xp OR (o.total_xp = p.total_xp AND o.user_id < p.user_id))
		 FROM user_progress p WHERE p.user_id = $1`, string(user)).Scan(&rank)
	if isNoRows(err) {
		return 0, domain.ErrUnknownUser
	}
	return rank, domain.StoreError("progress.rank", err)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&n)
	return n, domain.StoreError("progress.count", err)
}

// StaleUsers lists users with ledger entries newer than their applied_seq.
func (s *Store) StaleUsers(ctx context.Context, limit int) ([]domain.UserID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT l.user_id
		 FROM ledger l LEFT JOIN user_progress p ON p.user_id = l.user_id
		 GROUP BY l.user_id
		 HAVING MAX(l.seq) > COALESCE(MAX(p.applied_seq), 0)
		 ORDER BY l.user_id LIMIT $1`, limit)
	if err != nil {
		return nil, domain.StoreError("progress.stale", err)
	}
	users, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.UserID, error) {
		var u string
		err := r.Scan(&u)
		return domain.UserID(u), err
	})
	return users, domain.StoreError("progress.stale", err)
}

func scanProgress(row pgx.Row) (domain.UserProgress, error) {
	var (
		p    domain.UserProgress
		user string
	)
	if err := row.Scan(&user, &p.TotalXP, &p.Level, &p.Version, &p.AppliedSeq, &p.UpdatedAt); err != nil {
		return p, err
	}
	p.UserID = domain.UserID(user)
	return p, nil
}
