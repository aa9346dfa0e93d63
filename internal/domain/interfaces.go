package domain

import (
	"context"
	"time"
)

// ─── Collaborator Interfaces ────────────────────────────────────────────────
// The engine depends on these; infra/sqlite and infra/postgres implement them.
// Every I/O failure is returned wrapped as ErrStoreUnavailable.

// LedgerStore is the append-only activity history.
type LedgerStore interface {
	// Append durably writes e, assigning ID and Seq. Returns ErrDuplicateEntry
	// without writing when e.IdempotencyKey is already present for the user.
	Append(ctx context.Context, e LedgerEntry) (LedgerEntry, error)

	// ListByUser returns every entry oldest first, ties broken by Seq.
	ListByUser(ctx context.Context, user UserID) ([]LedgerEntry, error)

	// Recent returns up to limit entries newest first.
	Recent(ctx context.Context, user UserID, limit int) ([]LedgerEntry, error)

	// Summary aggregates points, per-kind counts and quiz scores.
	Summary(ctx context.Context, user UserID) (LedgerSummary, error)

	// ActivityTimes returns entry timestamps oldest first.
	ActivityTimes(ctx context.Context, user UserID) ([]time.Time, error)
}

// UserStore holds the derived per-user progress record.
type UserStore interface {
	// GetProgress returns the stored record, or NewUserProgress (Version 0)
	// when the user has never been written.
	GetProgress(ctx context.Context, user UserID) (UserProgress, error)

	// CompareAndSwap writes next when the stored version equals expected
	// (0 meaning "no row yet"); otherwise ErrVersionConflict. The stored
	// version becomes expected+1.
	CompareAndSwap(ctx context.Context, next UserProgress, expected int64) error

	// Top returns records ordered by TotalXP desc, then UserID.
	Top(ctx context.Context, limit, offset int) ([]RankedProgress, error)

	// Rank returns the 1-based leaderboard position, ErrUnknownUser if absent.
	Rank(ctx context.Context, user UserID) (int64, error)

	// Count returns the number of users with a stored record.
	Count(ctx context.Context) (int64, error)

	// StaleUsers lists users whose ledger has entries past AppliedSeq.
	StaleUsers(ctx context.Context, limit int) ([]UserID, error)
}

// AchievementStore holds unlocked-achievement records.
type AchievementStore interface {
	// Unlock inserts u if no record exists for the pair; reports whether it did.
	Unlock(ctx context.Context, u UnlockedAchievement) (bool, error)

	// ListUnlocked returns the user's unlocks, oldest first.
	ListUnlocked(ctx context.Context, user UserID) ([]UnlockedAchievement, error)

	// RewardTotal sums XPReward over the user's unlocks.
	RewardTotal(ctx context.Context, user UserID) (int64, error)
}

// NotificationStore holds the per-user notification feed.
type NotificationStore interface {
	InsertNotification(ctx context.Context, n Notification) (int64, error)
	PendingNotifications(ctx context.Context, user UserID, limit int) ([]Notification, error)
	MarkNotificationShown(ctx context.Context, user UserID, id int64) error
}

// StatsAggregator computes the predicate input for one user.
// TotalXP and Level are filled in by the caller.
type StatsAggregator interface {
	Stats(ctx context.Context, user UserID, now time.Time) (StatsSnapshot, error)
}

// Store is everything a storage backend provides.
type Store interface {
	LedgerStore
	UserStore
	AchievementStore
	NotificationStore
	Ping(ctx context.Context) error
	Close() error
}
