package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// ─── Notifications ──────────────────────────────────────────────────────────

// InsertNotification creates a new notification and returns its ID.
func (s *Store) InsertNotification(ctx context.Context, n domain.Notification) (int64, error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO notifications (user_id, type, title, body, created_at, shown)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		string(n.UserID), string(n.Type), n.Title, n.Body, n.CreatedAt.UTC(), n.Shown,
	).Scan(&id)
	return id, domain.StoreError("notifications.insert", err)
}

// PendingNotifications returns unshown notifications, oldest first.
func (s *Store) PendingNotifications(ctx context.Context, user domain.UserID, limit int) ([]domain.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, title, body, created_at, shown
		 FROM notifications WHERE user_id = $1 AND NOT shown
		 ORDER BY created_at, id LIMIT $2`, string(user), limit)
	if err != nil {
		return nil, domain.StoreError("notifications.pending", err)
	}
	out, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Notification, error) {
		var (
			n        domain.Notification
			uid, typ string
		)
		err := r.Scan(&n.ID, &uid, &typ, &n.Title, &n.Body, &n.CreatedAt, &n.Shown)
		n.UserID = domain.UserID(uid)
		n.Type = domain.NotificationType(typ)
		return n, err
	})
	return out, domain.StoreError("notifications.pending", err)
}

// MarkNotificationShown marks one of the user's notifications as shown.
func (s *Store) MarkNotificationShown(ctx context.Context, user domain.UserID, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE notifications SET shown = TRUE WHERE id = $1 AND user_id = $2`, id, string(user))
	if err != nil {
		return domain.StoreError("notifications.mark", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification %d: %w", id, domain.ErrNotificationNotFound)
	}
	return nil
}
