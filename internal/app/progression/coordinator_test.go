package progression_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vijayaragavanr18/Vervathon25/internal/app/progression"
	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// RecordActivity
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordActivity_FirstUpload(t *testing.T) {
	db, c := newEngine(t)

	res := record(t, c, "u1", domain.ActivityDocumentUpload, 50)

	assert.NotEmpty(t, res.EntryID)
	assert.Equal(t, int64(50), res.ActivityXP)
	assert.Equal(t, int64(100), res.XPAdded)
	assert.Equal(t, int64(100), res.TotalXP)
	assert.Equal(t, 1, res.PreviousLevel)
	assert.Equal(t, 2, res.NewLevel)
	assert.True(t, res.LeveledUp)
	require.Len(t, res.NewlyUnlocked, 1)
	assert.Equal(t, "first_upload", res.NewlyUnlocked[0].ID)
	assert.Empty(t, res.MilestoneRewards)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.Streak.Current)

	p, err := db.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.TotalXP)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(1), p.Version)
}

func TestRecordActivity_AchievementExactlyOnce(t *testing.T) {
	db, c := newEngine(t)

	record(t, c, "u1", domain.ActivityDocumentUpload, 10)
	for i := 0; i < 5; i++ {
		res := record(t, c, "u1", domain.ActivityDocumentUpload, 10)
		for _, d := range res.NewlyUnlocked {
			assert.NotEqual(t, "first_upload", d.ID, "first_upload unlocked twice")
		}
	}

	unlocks, err := db.ListUnlocked(context.Background(), "u1")
	require.NoError(t, err)
	count := 0
	for _, u := range unlocks {
		if u.AchievementID == "first_upload" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestRecordActivity_ReplayEquality(t *testing.T) {
	db, c := newEngine(t)
	score := func(v int) *int { return &v }

	inputs := []progression.ActivityInput{
		{UserID: "u1", Kind: domain.ActivityLogin, Points: 5},
		{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 50},
		{UserID: "u1", Kind: domain.ActivityChatMessage, Points: 2},
		{UserID: "u1", Kind: domain.ActivityQuizCompleted, Points: 30, Score: score(95)},
		{UserID: "u1", Kind: domain.ActivityQuizCompleted, Points: 0, Score: score(40)},
		{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 900},
		{UserID: "u1", Kind: domain.ActivityChatMessage, Points: 2},
	}
	var last *progression.Result
	for _, in := range inputs {
		res, err := c.RecordActivity(context.Background(), in)
		require.NoError(t, err)
		last = res
	}

	want := replayTotal(t, db, "u1")
	assert.Equal(t, want, last.TotalXP)
	p, err := db.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, want, p.TotalXP)
	assert.Equal(t, int(want/100)+1, p.Level)
}

func TestRecordActivity_Validation(t *testing.T) {
	db, c := newEngine(t)
	bad := func(v int) *int { return &v }

	cases := map[string]progression.ActivityInput{
		"empty user":      {Kind: domain.ActivityLogin},
		"unknown kind":    {UserID: "u1", Kind: "telepathy"},
		"system kind":     {UserID: "u1", Kind: domain.ActivityLevelMilestone, Points: 50},
		"negative points": {UserID: "u1", Kind: domain.ActivityLogin, Points: -1},
		"too many points": {UserID: "u1", Kind: domain.ActivityLogin, Points: progression.DefaultMaxPoints + 1},
		"score on chat":   {UserID: "u1", Kind: domain.ActivityChatMessage, Score: bad(50)},
		"score over 100":  {UserID: "u1", Kind: domain.ActivityQuizCompleted, Score: bad(101)},
		"reserved key":    {UserID: "u1", Kind: domain.ActivityLogin, IdempotencyKey: "milestone:5"},
	}
	for name, in := range cases {
		res, err := c.RecordActivity(context.Background(), in)
		assert.Nil(t, res, name)
		assert.ErrorIs(t, err, domain.ErrInvalidActivity, name)
	}

	entries, err := db.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, entries, "nothing may be written for invalid input")
}

func TestRecordActivity_ZeroPoints(t *testing.T) {
	_, c := newEngine(t)
	res := record(t, c, "u1", domain.ActivityLogin, 0)
	assert.Equal(t, int64(0), res.ActivityXP)
	assert.Equal(t, int64(0), res.TotalXP)
	assert.Equal(t, 1, res.NewLevel)
	assert.False(t, res.LeveledUp)
}

func TestRecordActivity_Idempotent(t *testing.T) {
	db, c := newEngine(t)
	ctx := context.Background()
	in := progression.ActivityInput{UserID: "u1", Kind: domain.ActivityChatMessage, Points: 10, IdempotencyKey: "msg-1"}

	first, err := c.RecordActivity(ctx, in)
	require.NoError(t, err)
	second, err := c.RecordActivity(ctx, in)
	require.NoError(t, err)

	assert.False(t, first.Duplicate)
	assert.True(t, second.Duplicate)
	assert.Empty(t, second.EntryID)
	assert.Equal(t, int64(0), second.ActivityXP)
	assert.Equal(t, int64(0), second.XPAdded)
	assert.Equal(t, first.TotalXP, second.TotalXP)
	assert.Empty(t, second.NewlyUnlocked)

	entries, _ := db.ListByUser(ctx, "u1")
	assert.Len(t, entries, 1)
}

// ═══════════════════════════════════════════════════════════════════════════
// Milestones
// ═══════════════════════════════════════════════════════════════════════════

func TestMilestone_Granted(t *testing.T) {
	db := testDB(t)
	c := progression.NewCoordinator(db, db, db, emptyCatalog(t))

	res := record(t, c, "u1", domain.ActivityDocumentUpload, 400)
	assert.Equal(t, 5, res.NewLevel)
	require.Len(t, res.MilestoneRewards, 1)
	assert.Equal(t, 5, res.MilestoneRewards[0].Level)
	assert.Equal(t, int64(50), res.MilestoneRewards[0].Bonus)
	assert.NotEmpty(t, res.MilestoneRewards[0].EntryID)
	assert.Equal(t, int64(450), res.TotalXP)
	assert.Equal(t, int64(450), res.XPAdded)

	res = record(t, c, "u1", domain.ActivityDocumentUpload, 500)
	require.Len(t, res.MilestoneRewards, 1)
	assert.Equal(t, 10, res.MilestoneRewards[0].Level)
	assert.Equal(t, int64(1050), res.TotalXP)
	assert.Equal(t, 11, res.NewLevel)

	// Staying above a milestone never re-grants it.
	res = record(t, c, "u1", domain.ActivityLogin, 1)
	assert.Empty(t, res.MilestoneRewards)

	entries, err := db.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	var milestones int
	for _, e := range entries {
		if e.Kind == domain.ActivityLevelMilestone {
			milestones++
		}
	}
	assert.Equal(t, 2, milestones)
	assert.Equal(t, replayTotal(t, db, "u1"), res.TotalXP)
}

func TestMilestone_Chained(t *testing.T) {
	db := testDB(t)
	c := progression.NewCoordinator(db, db, db, emptyCatalog(t),
		progression.WithMilestones([]domain.Milestone{{Level: 3, Bonus: 100}, {Level: 2, Bonus: 100}}))

	res := record(t, c, "u1", domain.ActivityDocumentUpload, 100)
	require.Len(t, res.MilestoneRewards, 2)
	assert.Equal(t, 2, res.MilestoneRewards[0].Level)
	assert.Equal(t, 3, res.MilestoneRewards[1].Level)
	assert.Equal(t, int64(300), res.TotalXP)
	assert.Equal(t, 4, res.NewLevel)
}

func TestMilestone_SkippedLevelsAllGranted(t *testing.T) {
	db := testDB(t)
	c := progression.NewCoordinator(db, db, db, emptyCatalog(t), progression.WithMaxPoints(5000))

	res := record(t, c, "u1", domain.ActivityDocumentUpload, 1000)
	levels := []int{}
	for _, m := range res.MilestoneRewards {
		levels = append(levels, m.Level)
	}
	assert.Equal(t, []int{5, 10}, levels)
	assert.Equal(t, int64(1150), res.TotalXP)
}

// ═══════════════════════════════════════════════════════════════════════════
// Failure Semantics & Rescan
// ═══════════════════════════════════════════════════════════════════════════

func TestRecordActivity_AppendFailureRecordsNothing(t *testing.T) {
	db := testDB(t)
	ledger := &flakyLedger{LedgerStore: db}
	ledger.fail.Store(true)
	c := progression.NewCoordinator(ledger, db, db, progression.DefaultCatalog())

	res, err := c.RecordActivity(context.Background(), progression.ActivityInput{UserID: "u1", Kind: domain.ActivityLogin, Points: 5})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errDiskGone)
	assert.False(t, errors.Is(err, domain.ErrDegraded))

	entries, _ := db.ListByUser(context.Background(), "u1")
	assert.Empty(t, entries)
}

func TestRecordActivity_DegradedThenRescan(t *testing.T) {
	db := testDB(t)
	achievements := &flakyAchievements{AchievementStore: db}
	c := progression.NewCoordinator(db, db, achievements, progression.DefaultCatalog())
	ctx := context.Background()

	achievements.fail.Store(true)
	res, err := c.RecordActivity(ctx, progression.ActivityInput{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 50})
	require.Error(t, err)
	require.NotNil(t, res, "activity was recorded")
	assert.True(t, res.Degraded)
	assert.NotEmpty(t, res.EntryID)
	assert.ErrorIs(t, err, domain.ErrDegraded)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)

	entries, _ := db.ListByUser(ctx, "u1")
	assert.Len(t, entries, 1, "activity must survive a derived-state failure")
	stale, err := db.StaleUsers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domain.UserID{"u1"}, stale)

	achievements.fail.Store(false)
	first, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.TotalXP)
	assert.Equal(t, 2, first.NewLevel)
	require.Len(t, first.NewlyUnlocked, 1)

	second, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.TotalXP, second.TotalXP)
	assert.Equal(t, first.NewLevel, second.NewLevel)
	assert.Empty(t, second.NewlyUnlocked)
	assert.False(t, second.LeveledUp)

	stale, _ = db.StaleUsers(ctx, 10)
	assert.Empty(t, stale)
}

func TestRescan_AnnouncesUnlockFromFailedWrite(t *testing.T) {
	db := testDB(t)
	users := &flakyUsers{UserStore: db}
	feed := progression.NewNotificationFeed(db)
	c := progression.NewCoordinator(db, users, db, progression.DefaultCatalog(), progression.WithObservers(feed))
	ctx := context.Background()

	users.fail.Store(true)
	res, err := c.RecordActivity(ctx, progression.ActivityInput{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 50})
	require.ErrorIs(t, err, domain.ErrDegraded)
	require.Len(t, res.NewlyUnlocked, 1, "the unlock is durable before the write fails")
	pending, _ := feed.Pending(ctx, "u1", 0)
	assert.Empty(t, pending, "nothing is announced for an uncommitted pass")

	users.fail.Store(false)
	first, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.TotalXP)
	assert.True(t, first.LeveledUp)
	require.Len(t, first.NewlyUnlocked, 1)
	assert.Equal(t, "first_upload", first.NewlyUnlocked[0].ID)
	assert.Equal(t, int64(50), first.XPAdded)

	pending, err = feed.Pending(ctx, "u1", 0)
	require.NoError(t, err)
	titles := map[domain.NotificationType]string{}
	for _, n := range pending {
		titles[n.Type] = n.Title
	}
	assert.Equal(t, "Achievement unlocked: First Upload", titles[domain.NotifyAchievement])
	assert.Equal(t, "Level 2 reached", titles[domain.NotifyLevelUp])

	second, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, second.NewlyUnlocked)
	pending, _ = feed.Pending(ctx, "u1", 0)
	assert.Len(t, pending, 2, "a converged rescan announces nothing again")
}

func TestRescan_AnnouncesWorkOfFailedPassForKnownUser(t *testing.T) {
	db := testDB(t)
	users := &flakyUsers{UserStore: db}
	catalog, err := progression.NewCatalog([]domain.AchievementDef{{
		ID: "two_docs", Title: "Two Documents", XPReward: 10,
		Predicate: domain.CountAtLeast(domain.MetricDocuments, 2),
	}})
	require.NoError(t, err)
	obs := &recordingObserver{}
	c := progression.NewCoordinator(db, users, db, catalog,
		progression.WithClock(ticker()), progression.WithObservers(obs))
	ctx := context.Background()

	record(t, c, "u1", domain.ActivityDocumentUpload, 100)

	users.fail.Store(true)
	_, err = c.RecordActivity(ctx, progression.ActivityInput{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 290})
	require.ErrorIs(t, err, domain.ErrDegraded)
	users.fail.Store(false)

	res, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(450), res.TotalXP)
	assert.Equal(t, 5, res.NewLevel)
	assert.Equal(t, 2, res.PreviousLevel)
	require.Len(t, res.NewlyUnlocked, 1)
	assert.Equal(t, "two_docs", res.NewlyUnlocked[0].ID)
	require.Len(t, res.MilestoneRewards, 1)
	assert.Equal(t, 5, res.MilestoneRewards[0].Level)
	assert.Equal(t, int64(60), res.XPAdded)
	assert.Equal(t, replayTotal(t, db, "u1"), res.TotalXP)

	events := obs.Events()
	require.Len(t, events, 2)
	last := events[1]
	require.Len(t, last.Unlocked, 1)
	require.Len(t, last.Milestones, 1)
	assert.Equal(t, int64(50), last.Milestones[0].Bonus)

	again, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, again.NewlyUnlocked)
	assert.Empty(t, again.MilestoneRewards)
	assert.Len(t, obs.Events(), 2)
}

func TestRescan_WarningReportedOncePerCall(t *testing.T) {
	db := testDB(t)
	users := &conflictingUsers{UserStore: db, conflicts: 2}
	c := progression.NewCoordinator(db, users, db, emptyCatalog(t), progression.WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	e, err := db.Append(ctx, domain.LedgerEntry{UserID: "u1", Kind: domain.ActivityLogin, Points: 100, OccurredAt: clock})
	require.NoError(t, err)
	require.NoError(t, db.CompareAndSwap(ctx, domain.UserProgress{UserID: "u1", TotalXP: 100, Level: 5, AppliedSeq: e.Seq, UpdatedAt: clock}, 0))

	res, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, users.calls)
	assert.Len(t, res.Warnings, 1)
}

func TestRescan_UnknownUser(t *testing.T) {
	_, c := newEngine(t)
	res, err := c.Rescan(context.Background(), "ghost")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestRescan_StoredLevelMismatchWarns(t *testing.T) {
	db, c := newEngine(t)
	ctx := context.Background()

	e, err := db.Append(ctx, domain.LedgerEntry{UserID: "u1", Kind: domain.ActivityLogin, Points: 100, OccurredAt: clock})
	require.NoError(t, err)
	require.NoError(t, db.CompareAndSwap(ctx, domain.UserProgress{UserID: "u1", TotalXP: 100, Level: 5, AppliedSeq: e.Seq, UpdatedAt: clock}, 0))

	res, err := c.Rescan(ctx, "u1")
	require.NoError(t, err)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "stored level 5")
	assert.Equal(t, 2, res.NewLevel)
}

func TestRescan_RefusesToDecrementXP(t *testing.T) {
	db, c := newEngine(t)
	ctx := context.Background()

	e, err := db.Append(ctx, domain.LedgerEntry{UserID: "u1", Kind: domain.ActivityLogin, Points: 100, OccurredAt: clock})
	require.NoError(t, err)
	require.NoError(t, db.CompareAndSwap(ctx, domain.UserProgress{UserID: "u1", TotalXP: 900, Level: 10, AppliedSeq: e.Seq, UpdatedAt: clock}, 0))

	res, err := c.Rescan(ctx, "u1")
	require.NotNil(t, res)
	assert.True(t, res.Degraded)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)

	p, _ := db.GetProgress(ctx, "u1")
	assert.Equal(t, int64(900), p.TotalXP, "stored total must not be lowered")
}

// ═══════════════════════════════════════════════════════════════════════════
// Observers
// ═══════════════════════════════════════════════════════════════════════════

func TestObservers_NotifiedOnCommit(t *testing.T) {
	obs := &recordingObserver{err: fmt.Errorf("observer down")}
	_, c := newEngine(t, progression.WithObservers(obs))
	ctx := context.Background()

	in := progression.ActivityInput{UserID: "u1", Kind: domain.ActivityDocumentUpload, Points: 50, IdempotencyKey: "doc-1"}
	_, err := c.RecordActivity(ctx, in)
	require.NoError(t, err, "observer failures are not propagated")

	events := obs.Events()
	require.Len(t, events, 1)
	ev := events[0]
	assert.True(t, ev.LeveledUp())
	assert.Equal(t, 1, ev.PreviousLevel)
	assert.Equal(t, int64(100), ev.Progress.TotalXP)
	require.Len(t, ev.Unlocked, 1)
	require.NotNil(t, ev.Activity)
	assert.Equal(t, domain.ActivityDocumentUpload, ev.Activity.Kind)

	// A duplicate with nothing new commits nothing.
	_, err = c.RecordActivity(ctx, in)
	require.NoError(t, err)
	assert.Len(t, obs.Events(), 1)
}

// ═══════════════════════════════════════════════════════════════════════════
// Concurrency
// ═══════════════════════════════════════════════════════════════════════════

func TestConcurrent_SameUserExactTotals(t *testing.T) {
	db, c := newEngine(t)
	const n = 20

	var wg sync.WaitGroup
	results := make([]*progression.Result, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.RecordActivity(context.Background(), progression.ActivityInput{
				UserID: "u1", Kind: domain.ActivityChatMessage, Points: 10,
			})
		}(i)
	}
	wg.Wait()

	unlockedFirstChat := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		for _, d := range results[i].NewlyUnlocked {
			if d.ID == "first_chat" {
				unlockedFirstChat++
			}
		}
	}
	assert.Equal(t, 1, unlockedFirstChat)

	p, err := db.GetProgress(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(n*10+25), p.TotalXP)
	assert.Equal(t, replayTotal(t, db, "u1"), p.TotalXP)
	assert.Equal(t, int64(n), p.Version)
}

func TestConcurrent_TwoUsersIsolated(t *testing.T) {
	db, c := newEngine(t)
	const n = 10

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := c.RecordActivity(context.Background(), progression.ActivityInput{UserID: "alice", Kind: domain.ActivityDocumentUpload, Points: 10})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := c.RecordActivity(context.Background(), progression.ActivityInput{UserID: "bob", Kind: domain.ActivityChatMessage, Points: 3})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ctx := context.Background()
	alice, _ := db.GetProgress(ctx, "alice")
	bob, _ := db.GetProgress(ctx, "bob")

	// alice: 100 points + first_upload(50) + document_collector(100).
	assert.Equal(t, int64(250), alice.TotalXP)
	// bob: 30 points + first_chat(25).
	assert.Equal(t, int64(55), bob.TotalXP)

	aliceUnlocks, _ := db.ListUnlocked(ctx, "alice")
	for _, u := range aliceUnlocks {
		assert.NotEqual(t, "first_chat", u.AchievementID)
	}
	bobUnlocks, _ := db.ListUnlocked(ctx, "bob")
	require.Len(t, bobUnlocks, 1)
	assert.Equal(t, "first_chat", bobUnlocks[0].AchievementID)
}
