package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/db"
)

func (c *sqliteClient) CreateReview(ctx context.Context, review *db.Review) (*db.Review, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO reviews (
			type, context, message_id, chat_id, report_command_message_id,
			reported_by_user_id, reported_at, status, action_taken, admin_notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := c.db.ExecContext(ctx, query,
		review.Type,
		review.Context,
		review.MessageID,
		review.ChatID,
		review.ReportCommandMessageID,
		review.ReportedByUserID,
		review.ReportedAt,
		db.ReviewStatusPending,
		review.ActionTaken,
		review.AdminNotes,
		review.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	review.ID = id
	review.Status = db.ReviewStatusPending
	return review, nil
}

func (c *sqliteClient) GetReview(ctx context.Context, id int64) (*db.Review, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var review db.Review
	err := c.db.GetContext(ctx, &review, `
		SELECT id, type, context, message_id, chat_id, report_command_message_id,
			reported_by_user_id, reported_at, status, reviewed_by, reviewed_at,
			action_taken, admin_notes, created_at
		FROM reviews
		WHERE id = ?
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}
	return &review, nil
}

func (c *sqliteClient) GetPendingReviews(ctx context.Context, limit int) ([]*db.Review, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var reviews []*db.Review
	err := c.db.SelectContext(ctx, &reviews, `
		SELECT id, type, context, message_id, chat_id, report_command_message_id,
			reported_by_user_id, reported_at, status, reviewed_by, reviewed_at,
			action_taken, admin_notes, created_at
		FROM reviews
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?
	`, db.ReviewStatusPending, limit)
	return reviews, err
}

// ResolveReview performs the conditional terminal transition. The
// WHERE status='pending' clause is what serializes racing reviewers:
// exactly one writer flips the row, everyone else gets
// db.ErrAlreadyResolved.
func (c *sqliteClient) ResolveReview(
	ctx context.Context,
	id int64,
	status db.ReviewStatus,
	reviewedBy actor.Actor,
	reviewedAt time.Time,
	actionTaken, adminNotes string,
) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE reviews
		SET status = ?, reviewed_by = ?, reviewed_at = ?, action_taken = ?, admin_notes = ?
		WHERE id = ? AND status = ?
	`, status, &reviewedBy, reviewedAt, actionTaken, adminNotes, id, db.ReviewStatusPending)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		if err := c.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM reviews WHERE id = ?`, id); err != nil {
			return err
		}
		if exists == 0 {
			return db.ErrNotFound
		}
		return db.ErrAlreadyResolved
	}
	return nil
}

func (c *sqliteClient) MarkMessageDeleted(ctx context.Context, reviewID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, err := c.db.ExecContext(ctx, `
		UPDATE reviews
		SET context = json_set(context, '$.message_deleted', json('true'))
		WHERE id = ?
	`, reviewID)
	return err
}
