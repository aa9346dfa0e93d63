package progression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
	"github.com/vijayaragavanr18/Vervathon25/internal/infra/metrics"
)

// DefaultMaxPoints caps the points a single caller activity may carry.
const DefaultMaxPoints = 1000

// DefaultCASAttempts bounds compare-and-swap retries per pass.
const DefaultCASAttempts = 5

// DefaultMilestones is the built-in level milestone table.
func DefaultMilestones() []domain.Milestone {
	return []domain.Milestone{
		{Level: 5, Bonus: 50},
		{Level: 10, Bonus: 100},
		{Level: 25, Bonus: 250},
		{Level: 50, Bonus: 500},
		{Level: 100, Bonus: 1000},
	}
}

// ActivityInput is one caller-reported activity.
type ActivityInput struct {
	UserID         domain.UserID       `json:"user_id"`
	Kind           domain.ActivityKind `json:"kind"`
	Points         int64               `json:"points"`
	Description    string              `json:"description,omitempty"`
	Score          *int                `json:"score,omitempty"`
	IdempotencyKey string              `json:"idempotency_key,omitempty"`
}

// Result is the consolidated outcome of RecordActivity or Rescan.
//
// XPAdded is ActivityXP plus the rewards of NewlyUnlocked plus the bonuses
// of MilestoneRewards. Degraded means the activity is durable but TotalXP
// and NewLevel may not reflect it yet.
type Result struct {
	UserID           domain.UserID            `json:"user_id"`
	EntryID          string                   `json:"entry_id,omitempty"`
	ActivityXP       int64                    `json:"activity_xp"`
	XPAdded          int64                    `json:"xp_added"`
	TotalXP          int64                    `json:"total_xp"`
	PreviousLevel    int                      `json:"previous_level"`
	NewLevel         int                      `json:"new_level"`
	LeveledUp        bool                     `json:"leveled_up"`
	NewlyUnlocked    []domain.AchievementDef  `json:"newly_unlocked"`
	MilestoneRewards []domain.MilestoneReward `json:"milestone_rewards"`
	Streak           domain.Streak            `json:"streak"`
	Duplicate        bool                     `json:"duplicate,omitempty"`
	Degraded         bool                     `json:"degraded,omitempty"`
	Warnings         []string                 `json:"warnings,omitempty"`
}

// ProgressEvent describes a committed progress change.
type ProgressEvent struct {
	Progress      domain.UserProgress
	PreviousLevel int
	Unlocked      []domain.AchievementDef
	Milestones    []domain.MilestoneReward
	Activity      *domain.LedgerEntry // nil for rescans and duplicates
}

// LeveledUp reports whether the event raised the user's level.
func (e ProgressEvent) LeveledUp() bool { return e.Progress.Level > e.PreviousLevel }

// Observer reacts to committed progress. Errors are logged, never propagated.
type Observer interface {
	Name() string
	OnProgress(ctx context.Context, ev ProgressEvent) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithLogger sets the structured logger.
func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithLocation sets the reference timezone for streak dates.
func WithLocation(loc *time.Location) Option { return func(c *Coordinator) { c.loc = loc } }

// WithMilestones replaces the milestone table.
func WithMilestones(ms []domain.Milestone) Option {
	return func(c *Coordinator) {
		c.milestones = append([]domain.Milestone(nil), ms...)
	}
}

// WithObservers registers observers notified after each committed write.
func WithObservers(obs ...Observer) Option {
	return func(c *Coordinator) { c.observers = append(c.observers, obs...) }
}

// WithStatsAggregator replaces the ledger-backed aggregator.
func WithStatsAggregator(a domain.StatsAggregator) Option {
	return func(c *Coordinator) { c.stats = a }
}

// WithCASAttempts bounds compare-and-swap retries.
func WithCASAttempts(n int) Option { return func(c *Coordinator) { c.casAttempts = n } }

// WithMaxPoints caps points per activity.
func WithMaxPoints(n int64) Option { return func(c *Coordinator) { c.maxPoints = n } }

// WithTracer sets the tracer for RecordActivity and Rescan spans.
func WithTracer(t trace.Tracer) Option { return func(c *Coordinator) { c.tracer = t } }

// Coordinator sequences ledger append, level recompute, achievement
// evaluation and milestone bonuses for each activity. All mutations for one
// user are serialized; different users proceed in parallel.
type Coordinator struct {
	ledger       domain.LedgerStore
	users        domain.UserStore
	achievements domain.AchievementStore
	stats        domain.StatsAggregator
	evaluator    *Evaluator
	milestones   []domain.Milestone
	observers    []Observer
	locks        *userLocks

	now         func() time.Time
	loc         *time.Location
	casAttempts int
	maxPoints   int64
	log         *zap.Logger
	tracer      trace.Tracer
}

// NewCoordinator wires the engine over its collaborators.
func NewCoordinator(ledger domain.LedgerStore, users domain.UserStore, achievements domain.AchievementStore, catalog *Catalog, opts ...Option) *Coordinator {
	c := &Coordinator{
		ledger:       ledger,
		users:        users,
		achievements: achievements,
		milestones:   DefaultMilestones(),
		locks:        newUserLocks(),
		now:          time.Now,
		loc:          time.UTC,
		casAttempts:  DefaultCASAttempts,
		maxPoints:    DefaultMaxPoints,
		log:          zap.NewNop(),
		tracer:       otel.Tracer("github.com/vijayaragavanr18/Vervathon25/progression"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	if c.casAttempts < 1 {
		c.casAttempts = 1
	}
	if c.stats == nil {
		c.stats = NewLedgerAggregator(ledger, c.loc)
	}
	sort.Slice(c.milestones, func(i, j int) bool { return c.milestones[i].Level < c.milestones[j].Level })
	c.evaluator = NewEvaluator(achievements, catalog)
	c.log = c.log.Named("progression")
	return c
}

// Evaluator returns the coordinator's achievement evaluator.
func (c *Coordinator) Evaluator() *Evaluator { return c.evaluator }

// Milestones returns the milestone table, lowest level first.
func (c *Coordinator) Milestones() []domain.Milestone {
	return append([]domain.Milestone(nil), c.milestones...)
}

// Location returns the reference timezone.
func (c *Coordinator) Location() *time.Location { return c.loc }

// Validate checks an activity without recording it.
func (c *Coordinator) Validate(in ActivityInput) error {
	switch {
	case strings.TrimSpace(string(in.UserID)) == "":
		return domain.InvalidActivity(in.UserID, "user id is required")
	case !in.Kind.IsCallerKind():
		return domain.InvalidActivity(in.UserID, "unknown activity kind %q", in.Kind)
	case in.Points < 0:
		return domain.InvalidActivity(in.UserID, "negative points %d", in.Points)
	case c.maxPoints > 0 && in.Points > c.maxPoints:
		return domain.InvalidActivity(in.UserID, "points %d exceed limit %d", in.Points, c.maxPoints)
	case in.Score != nil && in.Kind != domain.ActivityQuizCompleted:
		return domain.InvalidActivity(in.UserID, "score only applies to %s", domain.ActivityQuizCompleted)
	case in.Score != nil && (*in.Score < 0 || *in.Score > 100):
		return domain.InvalidActivity(in.UserID, "score %d outside 0-100", *in.Score)
	case strings.HasPrefix(in.IdempotencyKey, domain.MilestoneKeyPrefix):
		return domain.InvalidActivity(in.UserID, "idempotency key prefix %q is reserved", domain.MilestoneKeyPrefix)
	}
	return nil
}

// RecordActivity appends the activity to the ledger and brings the user's
// derived state up to date.
//
// A nil Result means nothing was recorded. A non-nil Result with a non-nil
// error (wrapping domain.ErrDegraded) means the activity is durable but
// derived state is stale until a later pass succeeds.
func (c *Coordinator) RecordActivity(ctx context.Context, in ActivityInput) (*Result, error) {
	started := time.Now()
	defer func() { metrics.RecordLatency.Observe(time.Since(started).Seconds()) }()

	ctx, span := c.tracer.Start(ctx, "progression.RecordActivity", trace.WithAttributes(
		attribute.String("user.id", string(in.UserID)),
		attribute.String("activity.kind", string(in.Kind)),
		attribute.Int64("activity.points", in.Points),
	))
	defer span.End()

	if err := c.Validate(in); err != nil {
		metrics.ActivitiesRejected.WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, "invalid activity")
		return nil, err
	}

	release := c.locks.lock(in.UserID)
	defer release()

	at := c.now()
	entry, err := c.ledger.Append(ctx, domain.LedgerEntry{
		UserID:         in.UserID,
		Kind:           in.Kind,
		Points:         in.Points,
		Score:          in.Score,
		Description:    in.Description,
		OccurredAt:     at,
		IdempotencyKey: in.IdempotencyKey,
	})
	res := &Result{UserID: in.UserID}
	var activity *domain.LedgerEntry
	switch {
	case errors.Is(err, domain.ErrDuplicateEntry):
		metrics.DuplicateActivities.Inc()
		res.Duplicate = true
		c.log.Info("duplicate activity, rescanning",
			zap.String("user", string(in.UserID)),
			zap.String("idempotency_key", in.IdempotencyKey))
	case err != nil:
		metrics.ActivitiesRejected.WithLabelValues("store").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "ledger append failed")
		c.log.Error("ledger append failed", zap.String("user", string(in.UserID)), zap.Error(err))
		return nil, &domain.Error{Op: "record_activity", UserID: in.UserID, Err: err}
	default:
		metrics.ActivitiesRecorded.WithLabelValues(string(in.Kind)).Inc()
		res.EntryID = entry.ID
		res.ActivityXP = entry.Points
		res.XPAdded = entry.Points
		activity = &entry
	}

	if err := c.derive(ctx, in.UserID, at, res, activity); err != nil {
		return c.degrade(span, res, entry.ID, err)
	}
	span.SetAttributes(
		attribute.Int64("progress.total_xp", res.TotalXP),
		attribute.Int("progress.level", res.NewLevel),
		attribute.Int("progress.unlocked", len(res.NewlyUnlocked)),
	)
	return res, nil
}

// Rescan re-runs the derived-state pass from the ledger without recording
// anything new. Repeated rescans converge on the same state.
func (c *Coordinator) Rescan(ctx context.Context, user domain.UserID) (*Result, error) {
	ctx, span := c.tracer.Start(ctx, "progression.Rescan", trace.WithAttributes(
		attribute.String("user.id", string(user)),
	))
	defer span.End()

	if strings.TrimSpace(string(user)) == "" {
		return nil, domain.InvalidActivity(user, "user id is required")
	}

	release := c.locks.lock(user)
	defer release()

	res := &Result{UserID: user}
	if err := c.derive(ctx, user, c.now(), res, nil); err != nil {
		if errors.Is(err, domain.ErrUnknownUser) {
			return nil, &domain.Error{Op: "rescan", UserID: user, Err: err}
		}
		return c.degrade(span, res, "", err)
	}
	return res, nil
}

func (c *Coordinator) degrade(span trace.Span, res *Result, entryID string, cause error) (*Result, error) {
	res.Degraded = true
	metrics.DegradedPasses.Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, "derived state degraded")
	c.log.Error("derived state degraded",
		zap.String("user", string(res.UserID)),
		zap.String("entry_id", entryID),
		zap.Error(cause))
	return res, &domain.Error{Op: "derive", Kind: domain.ErrDegraded, UserID: res.UserID, Err: cause}
}

// derive runs the pass with bounded compare-and-swap retries, then notifies
// observers of the committed state.
func (c *Coordinator) derive(ctx context.Context, user domain.UserID, at time.Time, res *Result, activity *domain.LedgerEntry) error {
	var (
		committed domain.UserProgress
		wrote     bool
		err       error
		made      = make(map[string]bool)
	)
	for attempt := 1; ; attempt++ {
		committed, wrote, err = c.pass(ctx, user, at, res, made)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= c.casAttempts {
			return err
		}
		metrics.VersionConflicts.Inc()
		c.log.Debug("progress version conflict, retrying",
			zap.String("user", string(user)), zap.Int("attempt", attempt))
	}

	if !wrote {
		return nil
	}
	if res.LeveledUp {
		metrics.LevelUps.Inc()
	}
	for _, d := range res.NewlyUnlocked {
		metrics.AchievementsUnlocked.WithLabelValues(d.ID).Inc()
	}
	for _, m := range res.MilestoneRewards {
		metrics.MilestoneBonuses.Add(float64(m.Bonus))
	}
	c.notify(ctx, ProgressEvent{
		Progress:      committed,
		PreviousLevel: res.PreviousLevel,
		Unlocked:      res.NewlyUnlocked,
		Milestones:    res.MilestoneRewards,
		Activity:      activity,
	})
	return nil
}

// pass recomputes the user's total from the ledger and unlock rewards,
// runs one evaluator pass, grants milestones and writes the record.
//
// The reported unlocks and milestones cover everything durable since prev
// was written, including work of earlier passes that failed before their
// write. Each pass rebuilds them, so a retry never reports twice. made
// collects the IDs this call unlocked across retries.
func (c *Coordinator) pass(ctx context.Context, user domain.UserID, at time.Time, res *Result, made map[string]bool) (domain.UserProgress, bool, error) {
	res.Warnings = nil
	res.NewlyUnlocked = nil
	res.MilestoneRewards = nil
	res.XPAdded = res.ActivityXP

	prev, err := c.users.GetProgress(ctx, user)
	if err != nil {
		return prev, false, err
	}
	summary, err := c.ledger.Summary(ctx, user)
	if err != nil {
		return prev, false, err
	}
	if prev.Version == 0 && summary.MaxSeq == 0 {
		return prev, false, domain.ErrUnknownUser
	}
	rewards, err := c.achievements.RewardTotal(ctx, user)
	if err != nil {
		return prev, false, err
	}
	c.checkStored(prev, res)

	res.PreviousLevel = prev.Level
	total := summary.TotalPoints + rewards
	level := levelOf(total)

	granted := make(map[int]bool, len(summary.Milestones))
	for _, m := range summary.Milestones {
		granted[m.Level] = true
		if m.Seq > prev.AppliedSeq {
			res.MilestoneRewards = append(res.MilestoneRewards, m)
			res.XPAdded += m.Bonus
		}
	}

	snap, err := c.stats.Stats(ctx, user, at)
	if err != nil {
		return prev, false, err
	}
	snap.UserID = user
	snap.TotalXP = total
	snap.Level = level
	res.Streak = domain.Streak{Current: snap.CurrentStreak, Longest: snap.LongestStreak, LastActivity: snap.LastActivity}

	unlocked, err := c.evaluator.Evaluate(ctx, user, snap, at)
	for _, d := range unlocked {
		total += d.XPReward
		made[d.ID] = true
	}
	if err != nil {
		c.announceUnlocks(res, nil, unlocked)
		return prev, false, err
	}
	stored, err := c.achievements.ListUnlocked(ctx, user)
	if err != nil {
		c.announceUnlocks(res, nil, unlocked)
		return prev, false, err
	}
	updatedAt := c.announceUnlocks(res, unannounced(prev, stored, unlocked, made), unlocked)
	if updatedAt.Before(at) {
		updatedAt = at
	}
	level = levelOf(total)

	maxSeq := summary.MaxSeq
	for {
		m, ok := c.nextMilestone(level, granted)
		if !ok {
			break
		}
		e, err := c.ledger.Append(ctx, domain.LedgerEntry{
			UserID:         user,
			Kind:           domain.ActivityLevelMilestone,
			Points:         m.Bonus,
			Description:    fmt.Sprintf("Reached level %d", m.Level),
			OccurredAt:     at,
			IdempotencyKey: domain.MilestoneKey(m.Level),
		})
		if errors.Is(err, domain.ErrDuplicateEntry) {
			// Granted by a concurrent writer after our summary read.
			return prev, false, fmt.Errorf("milestone %d: %w", m.Level, domain.ErrVersionConflict)
		}
		if err != nil {
			return prev, false, err
		}
		granted[m.Level] = true
		total += m.Bonus
		res.XPAdded += m.Bonus
		res.MilestoneRewards = append(res.MilestoneRewards, domain.MilestoneReward{Level: m.Level, Bonus: m.Bonus, EntryID: e.ID, Seq: e.Seq})
		maxSeq = max(maxSeq, e.Seq)
		level = levelOf(total)
	}

	res.TotalXP = total
	res.NewLevel = level
	res.LeveledUp = level > prev.Level

	if total < prev.TotalXP {
		metrics.InvariantWarnings.WithLabelValues("total_decreased").Inc()
		return prev, false, domain.Invariant("derive", user,
			"recomputed total %d below stored total %d", total, prev.TotalXP)
	}
	if prev.Version > 0 && total == prev.TotalXP && level == prev.Level && maxSeq == prev.AppliedSeq &&
		len(res.NewlyUnlocked) == 0 {
		return prev, false, nil
	}

	next := domain.UserProgress{
		UserID:     user,
		TotalXP:    total,
		Level:      level,
		Version:    prev.Version + 1,
		AppliedSeq: maxSeq,
		UpdatedAt:  updatedAt,
	}
	if err := c.users.CompareAndSwap(ctx, next, prev.Version); err != nil {
		return prev, false, err
	}
	return next, true, nil
}

// unannounced returns stored unlocks made after prev was written that this
// pass did not make itself. They belong to an earlier pass that failed
// before its write, or to an earlier attempt of this call.
func unannounced(prev domain.UserProgress, stored []domain.UnlockedAchievement, current []domain.AchievementDef, made map[string]bool) []domain.UnlockedAchievement {
	mine := make(map[string]bool, len(current))
	for _, d := range current {
		mine[d.ID] = true
	}
	var out []domain.UnlockedAchievement
	for _, u := range stored {
		if mine[u.AchievementID] {
			continue
		}
		switch {
		case prev.Version == 0, u.UnlockedAt.After(prev.UpdatedAt):
			out = append(out, u)
		case made[u.AchievementID] && !u.UnlockedAt.Before(prev.UpdatedAt):
			out = append(out, u)
		}
	}
	return out
}

// announceUnlocks fills res with earlier unannounced unlocks followed by
// this pass's unlocks, and returns the latest earlier unlock time.
func (c *Coordinator) announceUnlocks(res *Result, earlier []domain.UnlockedAchievement, current []domain.AchievementDef) time.Time {
	var latest time.Time
	for _, u := range earlier {
		d, ok := c.evaluator.Catalog().Get(u.AchievementID)
		if !ok {
			d = domain.AchievementDef{ID: u.AchievementID, Title: u.AchievementID}
		}
		d.XPReward = u.XPReward
		res.NewlyUnlocked = append(res.NewlyUnlocked, d)
		res.XPAdded += u.XPReward
		if u.UnlockedAt.After(latest) {
			latest = u.UnlockedAt
		}
	}
	for _, d := range current {
		res.NewlyUnlocked = append(res.NewlyUnlocked, d)
		res.XPAdded += d.XPReward
	}
	return latest
}

// checkStored flags a stored record whose level disagrees with its total.
// The record is not corrected here; the pass overwrites it with derived values.
func (c *Coordinator) checkStored(prev domain.UserProgress, res *Result) {
	if prev.Version == 0 {
		return
	}
	want := levelOf(prev.TotalXP)
	if prev.Level == want {
		return
	}
	err := domain.Invariant("derive", prev.UserID,
		"stored level %d disagrees with stored total %d (level %d)", prev.Level, prev.TotalXP, want)
	metrics.InvariantWarnings.WithLabelValues("stored_level").Inc()
	res.Warnings = append(res.Warnings, err.Error())
	c.log.Warn("invariant violation", zap.String("user", string(prev.UserID)), zap.Error(err))
}

// nextMilestone returns the lowest ungranted milestone at or below level.
func (c *Coordinator) nextMilestone(level int, granted map[int]bool) (domain.Milestone, bool) {
	for _, m := range c.milestones {
		if m.Level > level {
			break
		}
		if !granted[m.Level] {
			return m, true
		}
	}
	return domain.Milestone{}, false
}

func (c *Coordinator) notify(ctx context.Context, ev ProgressEvent) {
	for _, o := range c.observers {
		if err := o.OnProgress(ctx, ev); err != nil {
			c.log.Warn("observer failed",
				zap.String("observer", o.Name()),
				zap.String("user", string(ev.Progress.UserID)),
				zap.Error(err))
		}
	}
}
