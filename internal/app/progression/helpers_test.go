package progression_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/sqlite"
)

// clock is the fixed "now" used by coordinator tests.
var clock = time.Date(2025, 7, 10, 15, 0, 0, 0, time.UTC)

// testDB creates a temporary SQLite database for testing.
func testDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newEngine wires a coordinator over a fresh database with the default
// catalog and a fixed clock.
func newEngine(t *testing.T, opts ...progression.Option) (*sqlite.DB, *progression.Coordinator) {
	t.Helper()
	db := testDB(t)
	base := []progression.Option{progression.WithClock(func() time.Time { return clock })}
	return db, progression.NewCoordinator(db, db, db, progression.DefaultCatalog(), append(base, opts...)...)
}

func emptyCatalog(t *testing.T) *progression.Catalog {
	t.Helper()
	c, err := progression.NewCatalog(nil)
	require.NoError(t, err)
	return c
}

func record(t *testing.T, c *progression.Coordinator, user domain.UserID, kind domain.ActivityKind, points int64) *progression.Result {
	t.Helper()
	res, err := c.RecordActivity(context.Background(), progression.ActivityInput{UserID: user, Kind: kind, Points: points})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// replayTotal sums ledger points and unlock rewards straight from the store.
func replayTotal(t *testing.T, db *sqlite.DB, user domain.UserID) int64 {
	t.Helper()
	ctx := context.Background()
	entries, err := db.ListByUser(ctx, user)
	require.NoError(t, err)
	unlocks, err := db.ListUnlocked(ctx, user)
	require.NoError(t, err)

	var total int64
	for _, e := range entries {
		total += e.Points
	}
	for _, u := range unlocks {
		total += u.XPReward
	}
	return total
}

var errDiskGone = errors.New("disk gone")

// flakyAchievements fails RewardTotal while fail is set.
type flakyAchievements struct {
	domain.AchievementStore
	fail atomic.Bool
}

func (f *flakyAchievements) RewardTotal(ctx context.Context, user domain.UserID) (int64, error) {
	if f.fail.Load() {
		return 0, domain.StoreError("achievements.rewards", errDiskGone)
	}
	return f.AchievementStore.RewardTotal(ctx, user)
}

// flakyLedger fails Append while fail is set.
type flakyLedger struct {
	domain.LedgerStore
	fail atomic.Bool
}

func (f *flakyLedger) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, error) {
	if f.fail.Load() {
		return domain.LedgerEntry{}, domain.StoreError("ledger.append", errDiskGone)
	}
	return f.LedgerStore.Append(ctx, e)
}

// recordingObserver captures committed events.
type recordingObserver struct {
	mu     sync.Mutex
	events []progression.ProgressEvent
	err    error
}

func (r *recordingObserver) Name() string { return "recorder" }

func (r *recordingObserver) OnProgress(_ context.Context, ev progression.ProgressEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingObserver) Events() []progression.ProgressEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progression.ProgressEvent(nil), r.events...)
}

// flakyUsers fails CompareAndSwap while fail is set.
type flakyUsers struct {
	domain.UserStore
	fail atomic.Bool
}

func (f *flakyUsers) CompareAndSwap(ctx context.Context, next domain.UserProgress, expected int64) error {
	if f.fail.Load() {
		return domain.StoreError("progress.cas", errDiskGone)
	}
	return f.UserStore.CompareAndSwap(ctx, next, expected)
}

// ticker returns a clock that advances one minute per call.
func ticker() func() time.Time {
	var mu sync.Mutex
	now := clock
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Minute)
		return now
	}
}

// conflictingUsers reports a version conflict on the first conflicts writes.
type conflictingUsers struct {
	domain.UserStore
	conflicts int
	calls     int
}

func (f *conflictingUsers) CompareAndSwap(ctx context.Context, next domain.UserProgress, expected int64) error {
	f.calls++
	if f.calls <= f.conflicts {
		return domain.ErrVersionConflict
	}
	return f.UserStore.CompareAndSwap(ctx, next, expected)
}
