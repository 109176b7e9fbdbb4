package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/modwatch/modqueue/internal/db"
)

func (c *sqliteClient) CreatePendingNotification(ctx context.Context, pn *db.PendingNotification) (*db.PendingNotification, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO pending_notifications (telegram_user_id, notification_type, rendered_text, created_at, retry_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, pn.TelegramUserID, pn.NotificationType, pn.RenderedText, pn.CreatedAt, pn.RetryCount, pn.ExpiresAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	pn.ID = id
	return pn, nil
}

func (c *sqliteClient) GetPendingNotifications(ctx context.Context, telegramUserID int64, limit int) ([]*db.PendingNotification, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	var pending []*db.PendingNotification
	err := c.db.SelectContext(ctx, &pending, `
		SELECT id, telegram_user_id, notification_type, rendered_text, created_at, retry_count, expires_at
		FROM pending_notifications
		WHERE telegram_user_id = ? AND expires_at > ?
		ORDER BY id ASC
		LIMIT ?
	`, telegramUserID, time.Now(), limit)
	return pending, err
}

func (c *sqliteClient) DeletePendingNotification(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE id = ?`, id)
	return err
}

func (c *sqliteClient) BumpPendingNotificationRetry(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `UPDATE pending_notifications SET retry_count = retry_count + 1 WHERE id = ?`, id)
	return err
}

func (c *sqliteClient) DeleteExpiredPendingNotifications(ctx context.Context, now time.Time) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM pending_notifications WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *sqliteClient) CreatePushSubscription(ctx context.Context, sub *db.PushSubscription) (*db.PushSubscription, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			user_id = excluded.user_id,
			p256dh = excluded.p256dh,
			auth = excluded.auth
	`, sub.UserID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	sub.ID = id
	return sub, nil
}

func (c *sqliteClient) GetPushSubscriptions(ctx context.Context, userID string) ([]*db.PushSubscription, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var subs []*db.PushSubscription
	err := c.db.SelectContext(ctx, &subs, `
		SELECT id, user_id, endpoint, p256dh, auth, created_at
		FROM push_subscriptions
		WHERE user_id = ?
		ORDER BY id ASC
	`, userID)
	return subs, err
}

func (c *sqliteClient) DeletePushSubscription(ctx context.Context, endpoint string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM push_subscriptions WHERE endpoint = ?`, endpoint)
	return err
}

func (c *sqliteClient) GetPreferences(ctx context.Context, userID string) (*db.NotificationPreferences, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var prefs db.NotificationPreferences
	err := c.db.GetContext(ctx, &prefs, `
		SELECT user_id, channels, matrix, updated_at
		FROM notification_preferences
		WHERE user_id = ?
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &prefs, nil
}

func (c *sqliteClient) SavePreferences(ctx context.Context, prefs *db.NotificationPreferences) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO notification_preferences (user_id, channels, matrix, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			channels = excluded.channels,
			matrix = excluded.matrix,
			updated_at = excluded.updated_at
	`
	_, err := c.db.ExecContext(ctx, query, prefs.UserID, prefs.Channels, prefs.Matrix, prefs.UpdatedAt)
	return err
}
