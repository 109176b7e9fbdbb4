package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/modwatch/modqueue/internal/db"
)

func (c *sqliteClient) GetWebUser(ctx context.Context, id string) (*db.WebUser, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var user db.WebUser
	err := c.db.GetContext(ctx, &user, `
		SELECT id, email, telegram_user_id, is_owner
		FROM web_users
		WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (c *sqliteClient) UpsertWebUser(ctx context.Context, user *db.WebUser) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO web_users (id, email, telegram_user_id, is_owner)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			telegram_user_id = excluded.telegram_user_id,
			is_owner = excluded.is_owner
	`
	_, err := c.db.ExecContext(ctx, query, user.ID, user.Email, user.TelegramUserID, user.IsOwner)
	return err
}

func (c *sqliteClient) LinkChatAdmin(ctx context.Context, chatID int64, webUserID string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO chat_admins (chat_id, web_user_id) VALUES (?, ?)`, chatID, webUserID)
	return err
}

func (c *sqliteClient) GetChatAdmins(ctx context.Context, chatID int64) ([]*db.WebUser, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var admins []*db.WebUser
	err := c.db.SelectContext(ctx, &admins, `
		SELECT u.id, u.email, u.telegram_user_id, u.is_owner
		FROM web_users u
		JOIN chat_admins ca ON ca.web_user_id = u.id
		WHERE ca.chat_id = ?
		ORDER BY u.id ASC
	`, chatID)
	return admins, err
}

func (c *sqliteClient) GetOwners(ctx context.Context) ([]*db.WebUser, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var owners []*db.WebUser
	err := c.db.SelectContext(ctx, &owners, `
		SELECT id, email, telegram_user_id, is_owner
		FROM web_users
		WHERE is_owner = 1
		ORDER BY id ASC
	`)
	return owners, err
}
