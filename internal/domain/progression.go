// Package domain holds the progression engine's types, errors and the
// collaborator interfaces the engine consumes.
// The engine turns user activity into XP, levels, achievements and streaks.
package domain

import (
	"strconv"
	"strings"
	"time"
)

// UserID identifies a learner. Opaque to the engine.
type UserID string

// ─── Activity Kinds ─────────────────────────────────────────────────────────

// ActivityKind categorizes a ledger entry.
type ActivityKind string

const (
	ActivityDocumentUpload ActivityKind = "document_upload"
	ActivityChatMessage    ActivityKind = "chat_message"
	ActivityQuizCompleted  ActivityKind = "quiz_completed"
	ActivityLogin          ActivityKind = "login"

	// ActivityLevelMilestone is written by the engine only.
	ActivityLevelMilestone ActivityKind = "level_milestone"
)

// CallerKinds lists the kinds external callers may record.
var CallerKinds = []ActivityKind{
	ActivityDocumentUpload,
	ActivityChatMessage,
	ActivityQuizCompleted,
	ActivityLogin,
}

// IsCallerKind reports whether k may be recorded by an external caller.
func (k ActivityKind) IsCallerKind() bool {
	for _, c := range CallerKinds {
		if k == c {
			return true
		}
	}
	return false
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// LedgerEntry is one immutable activity record.
// Seq is assigned by the store and orders entries sharing a timestamp.
type LedgerEntry struct {
	ID             string       `json:"id"`
	Seq            int64        `json:"seq"`
	UserID         UserID       `json:"user_id"`
	Kind           ActivityKind `json:"kind"`
	Points         int64        `json:"points"`
	Score          *int         `json:"score,omitempty"` // quiz_completed only, 0-100
	Description    string       `json:"description,omitempty"`
	OccurredAt     time.Time    `json:"occurred_at"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

// LedgerSummary aggregates a user's ledger in one read.
type LedgerSummary struct {
	TotalPoints int64                  `json:"total_points"`
	Counts      map[ActivityKind]int64 `json:"counts"`
	QuizScores  int64                  `json:"quiz_scores"` // sum of recorded scores
	ScoredQuiz  int64                  `json:"scored_quiz"` // quizzes carrying a score
	MaxSeq      int64                  `json:"max_seq"`
	Milestones  []MilestoneReward      `json:"milestones"` // bonuses already granted, lowest seq first
}

// AverageQuizScore returns the mean recorded quiz score, 0 if none.
func (s LedgerSummary) AverageQuizScore() float64 {
	if s.ScoredQuiz == 0 {
		return 0
	}
	return float64(s.QuizScores) / float64(s.ScoredQuiz)
}

// ─── User Progress ──────────────────────────────────────────────────────────

// UserProgress is the derived per-user record.
// Version is an optimistic concurrency token; AppliedSeq is the highest
// ledger Seq reflected in TotalXP.
type UserProgress struct {
	UserID     UserID    `json:"user_id"`
	TotalXP    int64     `json:"total_xp"`
	Level      int       `json:"level"`
	Version    int64     `json:"version"`
	AppliedSeq int64     `json:"applied_seq"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewUserProgress returns the record of a user who has never been written.
func NewUserProgress(id UserID) UserProgress {
	return UserProgress{UserID: id, Level: 1}
}

// RankedProgress is a leaderboard row.
type RankedProgress struct {
	Rank int64 `json:"rank"`
	UserProgress
}

// ─── Streak ─────────────────────────────────────────────────────────────────

// Streak is derived from ledger timestamps; never stored.
type Streak struct {
	Current      int        `json:"current"`
	Longest      int        `json:"longest"`
	LastActivity *time.Time `json:"last_activity"`
}

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatGettingStarted AchievementCategory = "getting_started"
	CatDocuments      AchievementCategory = "documents"
	CatConversation   AchievementCategory = "conversation"
	CatQuizzes        AchievementCategory = "quizzes"
	CatStreaks        AchievementCategory = "streaks"
	CatMastery        AchievementCategory = "mastery"
)

// AchievementDef defines a single achievement. Read-only after catalog load.
type AchievementDef struct {
	ID          string              `json:"id" toml:"id"`
	Title       string              `json:"title" toml:"title"`
	Description string              `json:"description" toml:"description"`
	Category    AchievementCategory `json:"category" toml:"category"`
	XPReward    int64               `json:"xp_reward" toml:"xp_reward"`
	Predicate   Predicate           `json:"predicate" toml:"predicate"`
}

// UnlockedAchievement records when a user earned an achievement.
// At most one exists per (UserID, AchievementID).
type UnlockedAchievement struct {
	UserID        UserID    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	XPReward      int64     `json:"xp_reward"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// StatsSnapshot is the read-only input to achievement predicates.
type StatsSnapshot struct {
	UserID           UserID     `json:"user_id"`
	Documents        int64      `json:"documents"`
	ChatTurns        int64      `json:"chat_turns"`
	Quizzes          int64      `json:"quizzes"`
	ScoredQuizzes    int64      `json:"scored_quizzes"`
	Logins           int64      `json:"logins"`
	AverageQuizScore float64    `json:"average_quiz_score"`
	TotalXP          int64      `json:"total_xp"`
	Level            int        `json:"level"`
	CurrentStreak    int        `json:"current_streak"`
	LongestStreak    int        `json:"longest_streak"`
	LastActivity     *time.Time `json:"last_activity,omitempty"`
	TakenAt          time.Time  `json:"taken_at"`
}

// ─── Milestones ─────────────────────────────────────────────────────────────

// Milestone grants a one-time bonus when a level is reached.
type Milestone struct {
	Level int   `json:"level" toml:"level"`
	Bonus int64 `json:"bonus" toml:"bonus"`
}

// MilestoneKeyPrefix prefixes the idempotency key of milestone ledger entries.
// Callers may not use it.
const MilestoneKeyPrefix = "milestone:"

// MilestoneKey returns the idempotency key guarding level's bonus.
func MilestoneKey(level int) string { return MilestoneKeyPrefix + strconv.Itoa(level) }

// MilestoneLevel parses a key produced by MilestoneKey.
func MilestoneLevel(key string) (int, bool) {
	s, ok := strings.CutPrefix(key, MilestoneKeyPrefix)
	if !ok {
		return 0, false
	}
	l, err := strconv.Atoi(s)
	return l, err == nil
}

// MilestoneReward is a milestone bonus entry in the ledger.
type MilestoneReward struct {
	Level   int    `json:"level"`
	Bonus   int64  `json:"bonus"`
	EntryID string `json:"entry_id"`
	Seq     int64  `json:"seq"`
}

// ─── Notifications ──────────────────────────────────────────────────────────

// NotificationType categorizes notifications.
type NotificationType string

const (
	NotifyAchievement NotificationType = "achievement"
	NotifyLevelUp     NotificationType = "level_up"
	NotifyMilestone   NotificationType = "milestone"
)

// Notification is a user-facing message about a progression change.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    UserID           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	CreatedAt time.Time        `json:"created_at"`
	Shown     bool             `json:"shown"`
}
