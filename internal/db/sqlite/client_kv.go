package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/modwatch/modqueue/internal/db"
)

func (c *sqliteClient) GetKV(ctx context.Context, key string) (string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM kv_store WHERE key = ?`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get value for key %s: %w", key, err)
	}
	return value, nil
}

func (c *sqliteClient) SetKV(ctx context.Context, key string, value string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, datetime('now'))
		ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := c.db.ExecContext(ctx, query, key, value)
	if err != nil {
		return fmt.Errorf("failed to set value for key %s: %w", key, err)
	}
	return nil
}

func (c *sqliteClient) AddModerationAction(ctx context.Context, action *db.ModerationAction) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO moderation_actions (id, event_type, actor, target, value, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, action.ID, action.EventType, &action.Actor, &action.Target, action.Value, action.CreatedAt)
	return err
}
