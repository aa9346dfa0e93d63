// Package postgres implements domain.Store on PostgreSQL via pgxpool, for
// deployments where several engine processes share one database.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// Store wraps a pgx connection pool. It implements domain.Store.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Store)(nil)

// Open connects to databaseURL, verifies the connection and migrates.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database URL: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return domain.StoreError("postgres.ping", s.pool.Ping(ctx))
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ledger (
			seq             BIGSERIAL PRIMARY KEY,
			id              TEXT NOT NULL UNIQUE,
			user_id         TEXT NOT NULL,
			kind            TEXT NOT NULL,
			points          BIGINT NOT NULL CHECK (points >= 0),
			score           INTEGER CHECK (score BETWEEN 0 AND 100),
			description     TEXT NOT NULL DEFAULT '',
			occurred_at     TIMESTAMPTZ NOT NULL,
			idempotency_key TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger(user_id, occurred_at, seq)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_idem
			ON ledger(user_id, idempotency_key) WHERE idempotency_key IS NOT NULL`,

		`CREATE TABLE IF NOT EXISTS user_progress (
			user_id     TEXT PRIMARY KEY,
			total_xp    BIGINT NOT NULL CHECK (total_xp >= 0),
			level       INTEGER NOT NULL CHECK (level >= 1),
			version     BIGINT NOT NULL,
			applied_seq BIGINT NOT NULL DEFAULT 0,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_progress_xp ON user_progress(total_xp DESC, user_id)`,

		`CREATE TABLE IF NOT EXISTS unlocked_achievements (
			user_id        TEXT NOT NULL,
			achievement_id TEXT NOT NULL,
			xp_reward      BIGINT NOT NULL,
			unlocked_at    TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL PRIMARY KEY,
			user_id    TEXT NOT NULL,
			type       TEXT NOT NULL,
			title      TEXT NOT NULL,
			body       TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			shown      BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notif_user ON notifications(user_id, shown, created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("postgres: migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func nullStr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func isNoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
