package moderation

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/callback"
	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/infra"
	"github.com/modwatch/modqueue/internal/notify"
	"github.com/modwatch/modqueue/internal/observability"
	"github.com/modwatch/modqueue/internal/review"
)

type reviewService interface {
	Get(ctx context.Context, id int64) (*db.Review, error)
	Resolve(ctx context.Context, id int64, verdict review.Verdict, reviewer actor.Actor, reason string) (*db.Review, error)
}

type chatOps interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	BanUser(ctx context.Context, userID int64, chatID int64) error
	SendReply(ctx context.Context, chatID int64, replyToMessageID int, text string) error
}

type executorStore interface {
	MarkMessageDeleted(ctx context.Context, reviewID int64) error
	DeleteCallbackContext(ctx context.Context, id int64) error
}

type resolutionNotifier interface {
	SendToChatAdmins(ctx context.Context, chatID int64, msg notify.Message) (map[string]bool, error)
}

// Executor turns an admin's verdict into platform side effects and the
// review's terminal state. The ordering contract: side effects that
// must not be lost (the ban call) run before the resolve, best-effort
// ones (message deletion, closing reply) never block it.
type Executor struct {
	reviews  reviewService
	ops      chatOps
	store    executorStore
	audit    *Audit
	notifier resolutionNotifier
}

func NewExecutor(reviews reviewService, ops chatOps, store executorStore, audit *Audit) *Executor {
	return &Executor{reviews: reviews, ops: ops, store: store, audit: audit}
}

// WithNotifier makes resolved reports fan out a closing notification to
// the chat's linked admins.
func (e *Executor) WithNotifier(n resolutionNotifier) *Executor {
	e.notifier = n
	return e
}

// Apply executes the action an admin picked from a review keyboard.
// When another admin already resolved the review it returns the current
// row together with review.ErrAlreadyResolved so the caller can show
// who won.
func (e *Executor) Apply(ctx context.Context, cc *db.CallbackContext, action callback.Action, reviewer actor.Actor) (*db.Review, error) {
	if !action.Valid() {
		return nil, fmt.Errorf("unknown action %d", action)
	}

	rev, err := e.reviews.Get(ctx, cc.ReviewID)
	if err != nil {
		return nil, errors.Wrap(err, "load review")
	}
	// fast path for stale keyboards: never re-apply side effects for a
	// review someone already closed
	if rev.Status.Terminal() {
		return rev, review.ErrAlreadyResolved
	}

	var verdict review.Verdict
	switch action {
	case callback.ActionSpam:
		verdict = review.VerdictSpam
		e.deleteReportedMessage(ctx, rev)
	case callback.ActionTempBan:
		verdict = review.VerdictBan
		if err := e.ops.BanUser(ctx, cc.TargetUserID, cc.ChatID); err != nil {
			// the review stays pending so another admin can retry
			return nil, errors.Wrap(err, "ban user")
		}
		e.audit.Record("user_banned", reviewer, targetOf(cc), fmt.Sprintf("chat:%d", cc.ChatID))
		e.deleteReportedMessage(ctx, rev)
	case callback.ActionWarn:
		verdict = review.VerdictWarn
		e.audit.Record("user_warned", reviewer, targetOf(cc), fmt.Sprintf("review:%d", cc.ReviewID))
	case callback.ActionDismiss:
		verdict = review.VerdictDismiss
	}

	resolved, err := e.reviews.Resolve(ctx, cc.ReviewID, verdict, reviewer, "")
	if err != nil {
		if errors.Is(err, review.ErrAlreadyResolved) {
			return resolved, err
		}
		return nil, errors.Wrap(err, "resolve review")
	}

	observability.ReviewResolutionsTotal.WithLabelValues(string(verdict)).Inc()
	e.audit.Record("review_resolved", reviewer, targetOf(cc), string(verdict))

	if err := e.store.DeleteCallbackContext(ctx, cc.ID); err != nil {
		log.WithField("context_id", cc.ID).WithError(err).Warn("failed to consume callback context")
	}

	e.sendClosingReply(ctx, resolved, verdict)
	e.notifyResolution(resolved, verdict, reviewer)
	return resolved, nil
}

// notifyResolution tells the other linked admins the queue item is
// closed. Fire and forget, same as the audit writes.
func (e *Executor) notifyResolution(rev *db.Review, verdict review.Verdict, reviewer actor.Actor) {
	if e.notifier == nil || rev.Type != db.ReviewTypeContentReport || rev.ChatID == 0 {
		return
	}
	msg := notify.Message{
		Event:   notify.EventReportResolved,
		Subject: fmt.Sprintf("Report #%d resolved", rev.ID),
		Body:    fmt.Sprintf("%s closed report #%d: %s", reviewer.Tag(), rev.ID, verdict),
	}
	chatID := rev.ChatID
	go infra.GoRecoverable(1, "resolution-notify", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if _, err := e.notifier.SendToChatAdmins(ctx, chatID, msg); err != nil {
			log.WithField("review_id", rev.ID).WithError(err).Warn("failed to notify admins of resolution")
		}
	})
}

// deleteReportedMessage is best effort: a message the author already
// deleted must not block the verdict.
func (e *Executor) deleteReportedMessage(ctx context.Context, rev *db.Review) {
	if rev.ChatID == 0 || rev.MessageID == 0 {
		return
	}
	if err := e.ops.DeleteMessage(ctx, rev.ChatID, rev.MessageID); err != nil {
		log.WithFields(log.Fields{
			"chat_id":    rev.ChatID,
			"message_id": rev.MessageID,
		}).WithError(err).Warn("failed to delete reported message")
		return
	}
	if err := e.store.MarkMessageDeleted(ctx, rev.ID); err != nil {
		log.WithField("review_id", rev.ID).WithError(err).Warn("failed to mark message deleted")
	}
}

func (e *Executor) sendClosingReply(ctx context.Context, rev *db.Review, verdict review.Verdict) {
	if rev.ChatID == 0 {
		return
	}
	replyTo := rev.MessageID
	if rev.ReportCommandMessageID != 0 {
		replyTo = rev.ReportCommandMessageID
	}
	if err := e.ops.SendReply(ctx, rev.ChatID, replyTo, closingText(verdict)); err != nil {
		log.WithFields(log.Fields{
			"chat_id":   rev.ChatID,
			"review_id": rev.ID,
		}).WithError(err).Warn("failed to send closing reply")
	}
}

func closingText(verdict review.Verdict) string {
	switch verdict {
	case review.VerdictSpam:
		return "Report reviewed: the message was removed as spam."
	case review.VerdictBan:
		return "Report reviewed: the user was banned."
	case review.VerdictWarn:
		return "Report reviewed: the user received a warning."
	default:
		return "Report reviewed: no action was taken."
	}
}

func targetOf(cc *db.CallbackContext) actor.Actor {
	if cc.TargetUserID != 0 {
		return actor.FromTelegramUser(cc.TargetUserID)
	}
	return actor.FromSystem("unknown")
}
