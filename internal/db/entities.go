package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modwatch/modqueue/internal/actor"
)

type ReviewType string

const (
	ReviewTypeContentReport      ReviewType = "content_report"
	ReviewTypeImpersonationAlert ReviewType = "impersonation_alert"
	ReviewTypeExamFailure        ReviewType = "exam_failure"
)

type ReviewStatus string

const (
	ReviewStatusPending   ReviewStatus = "pending"
	ReviewStatusReviewed  ReviewStatus = "reviewed"
	ReviewStatusDismissed ReviewStatus = "dismissed"
)

type (
	// Review is the unified moderation-queue entity. Content reports,
	// impersonation alerts and failed entrance exams all land here and
	// share one lifecycle.
	Review struct {
		ID      int64       `db:"id"`
		Type    ReviewType  `db:"type"`
		Context JSONContext `db:"context"`

		// Origin fields, populated for content reports only.
		MessageID              int       `db:"message_id"`
		ChatID                 int64     `db:"chat_id"`
		ReportCommandMessageID int       `db:"report_command_message_id"`
		ReportedByUserID       int64     `db:"reported_by_user_id"`
		ReportedAt             time.Time `db:"reported_at"`

		Status      ReviewStatus `db:"status"`
		ReviewedBy  *actor.Actor `db:"reviewed_by"`
		ReviewedAt  *time.Time   `db:"reviewed_at"`
		ActionTaken string       `db:"action_taken"`
		AdminNotes  string       `db:"admin_notes"`
		CreatedAt   time.Time    `db:"created_at"`
	}

	// JSONContext holds the type-specific opaque payload of a review.
	JSONContext map[string]any

	WebUser struct {
		ID             string `db:"id"`
		Email          string `db:"email"`
		TelegramUserID int64  `db:"telegram_user_id"`
		IsOwner        bool   `db:"is_owner"`
	}

	NotificationPreferences struct {
		UserID    string      `db:"user_id"`
		Channels  StringSet   `db:"channels"`
		Matrix    EventMatrix `db:"matrix"`
		UpdatedAt time.Time   `db:"updated_at"`
	}

	// StringSet is stored as a JSON array.
	StringSet []string

	// EventMatrix maps "<channel>:<event>" to an explicit opt-in/out.
	// Absence of a key means enabled.
	EventMatrix map[string]bool

	PendingNotification struct {
		ID               int64     `db:"id"`
		TelegramUserID   int64     `db:"telegram_user_id"`
		NotificationType string    `db:"notification_type"`
		RenderedText     string    `db:"rendered_text"`
		CreatedAt        time.Time `db:"created_at"`
		RetryCount       int       `db:"retry_count"`
		ExpiresAt        time.Time `db:"expires_at"`
	}

	CallbackContext struct {
		ID           int64      `db:"id"`
		ReviewID     int64      `db:"review_id"`
		ReviewType   ReviewType `db:"review_type"`
		ChatID       int64      `db:"chat_id"`
		TargetUserID int64      `db:"target_user_id"`
		CreatedAt    time.Time  `db:"created_at"`
	}

	PushSubscription struct {
		ID        int64     `db:"id"`
		UserID    string    `db:"user_id"`
		Endpoint  string    `db:"endpoint"`
		P256dh    string    `db:"p256dh"`
		Auth      string    `db:"auth"`
		CreatedAt time.Time `db:"created_at"`
	}

	// ModerationAction is the append-only audit record mirrored from
	// every review resolution and moderation side effect.
	ModerationAction struct {
		ID        string      `db:"id"`
		EventType string      `db:"event_type"`
		Actor     actor.Actor `db:"actor"`
		Target    actor.Actor `db:"target"`
		Value     string      `db:"value"`
		CreatedAt time.Time   `db:"created_at"`
	}
)

func (s ReviewStatus) Terminal() bool {
	return s == ReviewStatusReviewed || s == ReviewStatusDismissed
}

func (c JSONContext) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return json.Marshal(c)
}

func (c *JSONContext) Scan(v interface{}) error {
	return scanJSON(v, c)
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringSet) Scan(v interface{}) error {
	return scanJSON(v, s)
}

func (s StringSet) Contains(value string) bool {
	for _, item := range s {
		if item == value {
			return true
		}
	}
	return false
}

func (m EventMatrix) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *EventMatrix) Scan(v interface{}) error {
	return scanJSON(v, m)
}

func scanJSON(v interface{}, target any) error {
	if v == nil {
		return nil
	}
	switch data := v.(type) {
	case string:
		return json.Unmarshal([]byte(data), target)
	case []byte:
		return json.Unmarshal(data, target)
	default:
		return fmt.Errorf("cannot scan type %T into %T", v, target)
	}
}
