package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a new notification.
func (d *DB) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	result, err := d.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, type, title, body, created_at, shown)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(n.UserID), string(n.Type), n.Title, n.Body, n.CreatedAt.UnixMilli(), n.Shown,
	)
	if err != nil {
		return 0, domain.StoreError("notifications.insert", err)
	}
	id, err := result.LastInsertId()
	return id, domain.StoreError("notifications.insert", err)
}

// PendingNotifications returns unshown notifications, oldest first.
func (d *DB) PendingNotifications(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown
		 FROM notifications WHERE user_id = ? AND shown = 0
		 ORDER BY created_at, id LIMIT ?`, string(user), limit)
	if err != nil {
		return nil, domain.StoreError("notifications.pending", err)
	}
	defer rows.Close()

	var notifs []domain.Notification
	for rows.Next() {
		var (
			n         domain.Notification
			uid, typ  string
			createdAt int64
		)
		if err := rows.Scan(&n.ID, &uid, &typ, &n.Title, &n.Body, &createdAt, &n.Shown); err != nil {
			return nil, domain.StoreError("notifications.pending", err)
		}
		n.UserID = domain.UserID(uid)
		n.Type = domain.NotificationType(typ)
		n.CreatedAt = time.UnixMilli(createdAt)
		notifs = append(notifs, n)
	}
	return notifs, domain.StoreError("notifications.pending", rows.Err())
}

// MarkNotificationShown marks one of the user's notifications as shown.
func (d *DB) MarkNotificationShown(ctx context.Context, user domain.UserID, id int64) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE notifications SET shown = 1 WHERE id = ? AND user_id = ?`, id, string(user))
	if err != nil {
		return domain.StoreError("notifications.mark", err)
	}
	n, err := affected("notifications.mark", result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotificationNotFound)
	}
	return nil
}
