package progression

import (
	"context"
	"errors"
	"fmt"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// NotificationFeed turns committed progress into user notifications:
// level ups, achievement unlocks and milestone bonuses. Nothing else.
type NotificationFeed struct {
	store domain.NotificationStore
}

// NewNotificationFeed creates a feed over store.
func NewNotificationFeed(store domain.NotificationStore) *NotificationFeed {
	return &NotificationFeed{store: store}
}

// Name implements Observer.
func (f *NotificationFeed) Name() string { return "notifications" }

// OnProgress writes one notification per unlock, per milestone, and one for
// a level up. Every insert is attempted; failures are joined.
func (f *NotificationFeed) OnProgress(ctx context.Context, ev ProgressEvent) error {
	user := ev.Progress.UserID
	at := ev.Progress.UpdatedAt
	var notes []domain.Notification

	if ev.LeveledUp() {
		notes = append(notes, domain.Notification{
			UserID: user, Type: domain.NotifyLevelUp, CreatedAt: at,
			Title: fmt.Sprintf("Level %d reached", ev.Progress.Level),
			Body:  fmt.Sprintf("You now have %d XP.", ev.Progress.TotalXP),
		})
	}
	for _, d := range ev.Unlocked {
		notes = append(notes, domain.Notification{
			UserID: user, Type: domain.NotifyAchievement, CreatedAt: at,
			Title: "Achievement unlocked: " + d.Title,
			Body:  fmt.Sprintf("%s (+%d XP)", d.Description, d.XPReward),
		})
	}
	for _, m := range ev.Milestones {
		notes = append(notes, domain.Notification{
			UserID: user, Type: domain.NotifyMilestone, CreatedAt: at,
			Title: fmt.Sprintf("Level %d milestone", m.Level),
			Body:  fmt.Sprintf("Bonus of %d XP for reaching level %d.", m.Bonus, m.Level),
		})
	}

	var errs []error
	for _, n := range notes {
		if _, err := f.store.InsertNotification(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("insert %s notification: %w", n.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Pending returns unshown notifications, oldest first.
func (f *NotificationFeed) Pending(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	return f.store.PendingNotifications(ctx, user, limit)
}

// MarkShown marks a notification as shown.
func (f *NotificationFeed) MarkShown(ctx context.Context, user domain.UserID, id int64) error {
	return f.store.MarkNotificationShown(ctx, user, id)
}
