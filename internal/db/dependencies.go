package db

import (
	"context"
	"time"

	"github.com/modwatch/modqueue/internal/actor"
)

// Client is the full persistence surface. Consumers declare the narrow
// subset they need; the sqlite client implements all of it.
type Client interface {
	Close() error

	CreateReview(ctx context.Context, review *Review) (*Review, error)
	GetReview(ctx context.Context, id int64) (*Review, error)
	GetPendingReviews(ctx context.Context, limit int) ([]*Review, error)
	ResolveReview(ctx context.Context, id int64, status ReviewStatus, reviewedBy actor.Actor, reviewedAt time.Time, actionTaken, adminNotes string) error
	MarkMessageDeleted(ctx context.Context, reviewID int64) error

	CreateCallbackContext(ctx context.Context, cc *CallbackContext) (*CallbackContext, error)
	GetCallbackContext(ctx context.Context, id int64) (*CallbackContext, error)
	DeleteCallbackContext(ctx context.Context, id int64) error
	DeleteCallbackContextsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	CreatePendingNotification(ctx context.Context, pn *PendingNotification) (*PendingNotification, error)
	GetPendingNotifications(ctx context.Context, telegramUserID int64, limit int) ([]*PendingNotification, error)
	DeletePendingNotification(ctx context.Context, id int64) error
	BumpPendingNotificationRetry(ctx context.Context, id int64) error
	DeleteExpiredPendingNotifications(ctx context.Context, now time.Time) (int64, error)

	CreatePushSubscription(ctx context.Context, sub *PushSubscription) (*PushSubscription, error)
	GetPushSubscriptions(ctx context.Context, userID string) ([]*PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error

	GetPreferences(ctx context.Context, userID string) (*NotificationPreferences, error)
	SavePreferences(ctx context.Context, prefs *NotificationPreferences) error

	GetWebUser(ctx context.Context, id string) (*WebUser, error)
	UpsertWebUser(ctx context.Context, user *WebUser) error
	LinkChatAdmin(ctx context.Context, chatID int64, webUserID string) error
	GetChatAdmins(ctx context.Context, chatID int64) ([]*WebUser, error)
	GetOwners(ctx context.Context) ([]*WebUser, error)

	AddModerationAction(ctx context.Context, action *ModerationAction) error

	GetKV(ctx context.Context, key string) (string, error)
	SetKV(ctx context.Context, key string, value string) error
}
