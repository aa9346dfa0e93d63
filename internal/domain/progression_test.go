package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestActivityKind_IsCallerKind(t *testing.T) {
	for _, k := range CallerKinds {
		if !k.IsCallerKind() {
			t.Errorf("%s should be a caller kind", k)
		}
	}
	if ActivityLevelMilestone.IsCallerKind() {
		t.Error("level_milestone is engine-only")
	}
	if ActivityKind("").IsCallerKind() {
		t.Error("empty kind accepted")
	}
}

func TestMilestoneKey(t *testing.T) {
	key := MilestoneKey(25)
	if key != "milestone:25" {
		t.Fatalf("MilestoneKey(25) = %q", key)
	}
	if l, ok := MilestoneLevel(key); !ok || l != 25 {
		t.Errorf("MilestoneLevel(%q) = %d, %v", key, l, ok)
	}
	for _, bad := range []string{"", "quiz-1", "milestone:", "milestone:x"} {
		if _, ok := MilestoneLevel(bad); ok {
			t.Errorf("MilestoneLevel(%q) should fail", bad)
		}
	}
}

func TestLedgerSummary_AverageQuizScore(t *testing.T) {
	if got := (LedgerSummary{}).AverageQuizScore(); got != 0 {
		t.Errorf("empty average = %v", got)
	}
	s := LedgerSummary{QuizScores: 270, ScoredQuiz: 3}
	if got := s.AverageQuizScore(); got != 90 {
		t.Errorf("average = %v, want 90", got)
	}
}

func TestNewUserProgress(t *testing.T) {
	p := NewUserProgress("u1")
	if p.Level != 1 || p.TotalXP != 0 || p.Version != 0 {
		t.Errorf("NewUserProgress = %+v", p)
	}
}

// ─── Errors ─────────────────────────────────────────────────────────────────

func TestError_MatchesKindAndCause(t *testing.T) {
	cause := errors.New("disk gone")
	err := fmt.Errorf("outer: %w", &Error{Op: "derive", Kind: ErrDegraded, UserID: "u1", Err: StoreError("ledger.append", cause)})

	for _, target := range []error{ErrDegraded, ErrStoreUnavailable, cause} {
		if !errors.Is(err, target) {
			t.Errorf("errors.Is(%v) = false", target)
		}
	}
	if errors.Is(err, ErrInvalidActivity) {
		t.Error("unexpected match on ErrInvalidActivity")
	}

	var de *Error
	if !errors.As(err, &de) || de.UserID != "u1" {
		t.Errorf("errors.As failed: %v", de)
	}
	want := "outer: derive [u1]: activity recorded, derived state degraded: ledger.append: progression store unavailable: disk gone"
	if err.Error() != want {
		t.Errorf("Error() = %q\nwant %q", err.Error(), want)
	}
}

func TestStoreError(t *testing.T) {
	if StoreError("op", nil) != nil {
		t.Error("nil should stay nil")
	}
	for _, passthrough := range []error{ErrDuplicateEntry, ErrVersionConflict} {
		if got := StoreError("op", passthrough); got != passthrough {
			t.Errorf("StoreError(%v) = %v, want passthrough", passthrough, got)
		}
	}
	wrapped := StoreError("op", errors.New("timeout"))
	if !errors.Is(wrapped, ErrStoreUnavailable) || !IsRetryable(wrapped) {
		t.Errorf("driver error should be a retryable ErrStoreUnavailable: %v", wrapped)
	}
	if IsRetryable(InvalidActivity("u", "bad")) {
		t.Error("validation errors are not retryable")
	}
}
