package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Activity Ledger ────────────────────────────────────────────────────────

const ledgerColumns = `seq, id, user_id, kind, points, score, description, occurred_at, idempotency_key`

// Append writes an immutable ledger entry and returns it with ID and Seq set.
// A repeated (user, idempotency key) writes nothing and returns ErrDuplicateEntry.
func (d *DB) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	var score sql.NullInt64
	if e.Score != nil {
		score = sql.NullInt64{Int64: int64(*e.Score), Valid: true}
	}

	result, err := d.db.ExecContext(ctx,
		`INSERT INTO ledger (id, user_id, kind, points, score, description, occurred_at, idempotency_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING`,
		e.ID, string(e.UserID), string(e.Kind), e.Points, score, e.Description,
		e.OccurredAt.UnixMilli(), nullStr(e.IdempotencyKey),
	)
	if err != nil {
		return domain.LedgerEntry{}, domain.StoreError("ledger.append", err)
	}
	n, err := affected("ledger.append", result)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	if n == 0 {
		return domain.LedgerEntry{}, domain.ErrDuplicateEntry
	}
	e.Seq, err = result.LastInsertId()
	if err != nil {
		return domain.LedgerEntry{}, domain.StoreError("ledger.append", err)
	}
	return e, nil
}

// ListByUser returns every entry for user, oldest first, ties by seq.
func (d *DB) ListByUser(ctx context.Context, user domain.UserID) ([]domain.LedgerEntry, error) {
	return d.queryEntries(ctx, "ledger.list",
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = ? ORDER BY occurred_at, seq`,
		string(user))
}

// Recent returns up to limit entries, newest first.
func (d *DB) Recent(ctx context.Context, user domain.UserID, limit int) ([]domain.LedgerEntry, error) {
	return d.queryEntries(ctx, "ledger.recent",
		`SELECT `+ledgerColumns+` FROM ledger WHERE user_id = ? ORDER BY occurred_at DESC, seq DESC LIMIT ?`,
		string(user), limit)
}

// Summary aggregates the user's ledger.
func (d *DB) Summary(ctx context.Context, user domain.UserID) (domain.LedgerSummary, error) {
	sum := domain.LedgerSummary{Counts: make(map[domain.ActivityKind]int64)}

	rows, err := d.db.QueryContext(ctx,
		`SELECT kind, COUNT(*), COALESCE(SUM(points), 0), COALESCE(SUM(score), 0), COUNT(score), MAX(seq)
		 FROM ledger WHERE user_id = ? GROUP BY kind`, string(user))
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
		sum.Counts[domain.ActivityKind(kind)] = count
		sum.TotalPoints += points
		if domain.ActivityKind(kind) == domain.ActivityQuizCompleted {
			sum.QuizScores += scores
			sum.ScoredQuiz += scored
		}
		sum.MaxSeq = max(sum.MaxSeq, maxSeq)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}

	if sum.Counts[domain.ActivityLevelMilestone] == 0 {
		return sum, nil
	}
	grants, err := d.db.QueryContext(ctx,
		`SELECT id, seq, points, idempotency_key FROM ledger
		 WHERE user_id = ? AND kind = ? AND idempotency_key IS NOT NULL ORDER BY seq`,
		string(user), string(domain.ActivityLevelMilestone))
	if err != nil {
		return sum, domain.StoreError("ledger.summary", err)
	}
	defer grants.Close()
	for grants.Next() {
		var (
			m   domain.MilestoneReward
			key string
		)
		if err := grants.Scan(&m.EntryID, &m.Seq, &m.Bonus, &key); err != nil {
			return sum, domain.StoreError("ledger.summary", err)
		}
		if level, ok := domain.MilestoneLevel(key); ok {
			m.Level = level
			sum.Milestones = append(sum.Milestones, m)
		}
	}
	return sum, domain.StoreError("ledger.summary", grants.Err())
}

// ActivityTimes returns entry timestamps, oldest first.
func (d *DB) ActivityTimes(ctx context.Context, user domain.UserID) ([]time.Time, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT occurred_at FROM ledger WHERE user_id = ? ORDER BY occurred_at, seq`, string(user))
	if err != nil {
		return nil, domain.StoreError("ledger.times", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, domain.StoreError("ledger.times", err)
		}
		times = append(times, time.UnixMilli(ms))
	}
	return times, domain.StoreError("ledger.times", rows.Err())
}

func (d *DB) queryEntries(ctx context.Context, op, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, domain.StoreError(op, err)
		}
		entries = append(entries, e)
	}
	return entries, domain.StoreError(op, rows.Err())
}

func scanEntry(s scanner) (domain.LedgerEntry, error) {
	var (
		e          domain.LedgerEntry
		user, kind string
		score      sql.NullInt64
		occurredAt int64
		key        sql.NullString
	)
	if err := s.Scan(&e.Seq, &e.ID, &user, &kind, &e.Points, &score, &e.Description, &occurredAt, &key); err != nil {
		return e, err
	}
	e.UserID = domain.UserID(user)
	e.Kind = domain.ActivityKind(kind)
	if score.Valid {
		v := int(score.Int64)
		e.Score = &v
	}
	e.OccurredAt = time.UnixMilli(occurredAt)
	e.IdempotencyKey = key.String
	return e, nil
}
