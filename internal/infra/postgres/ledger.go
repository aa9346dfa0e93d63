package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Activity Ledger ────────────────────────────────────────────────────────

const ledgerColumns = `seq, id, user_id, kind, points, score, description, occurred_at, idempotency_key`

// Append writes an immutable ledger entry and returns it with ID and Seq set.
func (s *Store) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO ledger (id, user_id, kind, points, score, description, occurred_at, idempotency_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		 RETURNING seq`,
		e.ID, string(e.UserID), string(e.Kind), e.Points, e.Score, e.Description,
		e.OccurredAt.UTC(), nullStr(e.IdempotencyKey),
	).Scan(&e.Seq)
	if isNoRows(err) {
		return domain.LedgerEntry{}, domain.ErrDuplicateEntry
	}
	if err != nil {
		return domain.LedgerEntry{}, domain.StoreError("ledger.append", err)
	}
	return e, nil
}

// ListByUser returns every entry for user, oldest first, ties by seq.
func (s *Store) ListByUser(ctx context.Context, user domain.UserID) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, "ledger.list",
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = $1 ORDER BY occurred_at, seq`,
		string(user))
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, user domain.UserID, limit int) ([]domain.LedgerEntry, error) {
	return s.queryEntries(ctx, "ledger.recent",
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = $1 ORDER BY occurred_at DESC, seq DESC LIMIT $2`,
		string(user), limit)
}

// Summary aggregates the user's ledger.
func (s *Store) Summary(ctx context.Context, user domain.UserID) (domain.LedgerSummary, error) {
	sum := domain.LedgerSummary{Counts: make(map[domain.ActivityKind]int64)}

	rows, err := s.pool.Query(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(points), 0)::BIGINT, COALESCE(SUM(score), 0)::BIGINT,
		        COUNT(score), MAX(seq)
		 FROM ledger WHERE user_id = $1 GROUP BY kind`, string(user))
	if err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}
	for rows.Next() {
		var (
			kind                                  string
			count, points, scores, scored, maxSeq int64
		)
		if err := rows.Scan(&kind, &count, &points, &scores, &scored, &maxSeq); err != nil {
			rows.Close()
			return sum, domain.StoreError("ledger.summary", err)
		}
		k := domain.ActivityKind(kind)
		sum.Counts[k] = count
		sum.TotalPoints += points
		sum.MaxSeq = max(sum.MaxSeq, maxSeq)
		if k == domain.ActivityQuizCompleted {
			sum.QuizScores += scores
			sum.ScoredQuiz += scored
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}

	if sum.Counts[domain.ActivityLevelMilestone] == 0 {
		return sum, nil
	}
	grants, err := s.pool.Query(ctx,
		`SELECT id, seq, points, idempotency_key FROM ledger
		 WHERE user_id = $1 AND kind = $2 AND idempotency_key IS NOT NULL ORDER BY seq`,
		string(user), string(domain.ActivityLevelMilestone))
	if err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}
	all, err := pgx.CollectRows(grants, func(row pgx.CollectableRow) (domain.MilestoneReward, error) {
		var (
			m   domain.MilestoneReward
			key string
		)
		if err := row.Scan(&m.EntryID, &m.Seq, &m.Bonus, &key); err != nil {
			return m, err
		}
		m.Level, _ = domain.MilestoneLevel(key)
		return m, nil
	})
	if err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}
	for _, m := range all {
		if m.Level > 0 {
			sum.Milestones = append(sum.Milestones, m)
		}
	}
	return sum, nil
}

// ActivityTimes returns entry timestamps, oldest first.
func (s *Store) ActivityTimes(ctx context.Context, user domain.UserID) ([]time.Time, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT occurred_at FROM ledger WHERE user_id = $1 ORDER BY occurred_at, seq`, string(user))
	if err != nil {
		return nil, domain.StoreError("ledger.times", err)
	}
	times, err := pgx.CollectRows(rows, pgx.RowTo[time.Time])
	return times, domain.StoreError("ledger.times", err)
}

func (s *Store) queryEntries(ctx context.Context, op, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	return entries, domain.StoreError(op, err)
}

func scanEntry(row pgx.CollectableRow) (domain.LedgerEntry, error) {
	var (
		e          domain.LedgerEntry
		user, kind string
		score      *int32
		key        *string
	)
	if err := row.Scan(&e.Seq, &e.ID, &user, &kind, &e.Points, &score, &e.Description, &e.OccurredAt, &key); err != nil {
		return e, err
	}
	e.UserID = domain.UserID(user)
	e.Kind = domain.ActivityKind(kind)
	if score != nil {
		v := int(*score)
		e.Score = &v
	}
	if key != nil {
		e.IdempotencyKey = *key
	}
	return e, nil
}
