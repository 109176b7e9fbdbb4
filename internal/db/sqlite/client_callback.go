package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/modwatch/modqueue/internal/db"
)

func (c *sqliteClient) CreateCallbackContext(ctx context.Context, cc *db.CallbackContext) (*db.CallbackContext, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		INSERT INTO callback_contexts (review_id, review_type, chat_id, target_user_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, cc.ReviewID, cc.ReviewType, cc.ChatID, cc.TargetUserID, cc.CreatedAt)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	cc.ID = id
	return cc, nil
}

func (c *sqliteClient) GetCallbackContext(ctx context.Context, id int64) (*db.CallbackContext, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var cc db.CallbackContext
	err := c.db.GetContext(ctx, &cc, `
		SELECT id, review_id, review_type, chat_id, target_user_id, created_at
		FROM callback_contexts
		WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &cc, nil
}

func (c *sqliteClient) DeleteCallbackContext(ctx context.Context, id int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `DELETE FROM callback_contexts WHERE id = ?`, id)
	return err
}

func (c *sqliteClient) DeleteCallbackContextsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM callback_contexts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
