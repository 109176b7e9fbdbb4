package handlers

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/actor"
	"github.com/modwatch/modqueue/internal/bot"
	"github.com/modwatch/modqueue/internal/callback"
	"github.com/modwatch/modqueue/internal/db"
	"github.com/modwatch/modqueue/internal/intake"
	"github.com/modwatch/modqueue/internal/moderation"
	"github.com/modwatch/modqueue/internal/review"
)

type chatOps interface {
	AnswerCallback(ctx context.Context, callbackQueryID string, text string) error
	EditMessageRemoveKeyboard(ctx context.Context, chatID int64, messageID int, text string) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

type pendingFlusher interface {
	FlushPending(ctx context.Context, telegramUserID int64) (int, error)
}

type queueLister interface {
	ListPending(ctx context.Context, limit int) ([]*db.Review, error)
}

type accountStore interface {
	GetWebUser(ctx context.Context, id string) (*db.WebUser, error)
	UpsertWebUser(ctx context.Context, user *db.WebUser) error
	LinkChatAdmin(ctx context.Context, chatID int64, webUserID string) error
}

// Reports handles the member-facing surface of the review queue: the
// /report command in groups, the verdict buttons on admin DMs and the
// pending-notification flush when a user opens a private chat.
type Reports struct {
	s         bot.Service
	intake    *intake.Service
	executor  *moderation.Executor
	callbacks *callback.Store
	reviews   queueLister
	flusher   pendingFlusher
	accounts  accountStore
	ops       chatOps
}

func NewReports(s bot.Service, in *intake.Service, executor *moderation.Executor, callbacks *callback.Store, reviews queueLister, flusher pendingFlusher, accounts accountStore, ops chatOps) *Reports {
	return &Reports{
		s:         s,
		intake:    in,
		executor:  executor,
		callbacks: callbacks,
		reviews:   reviews,
		flusher:   flusher,
		accounts:  accounts,
		ops:       ops,
	}
}

func (r *Reports) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil && callback.IsReviewPayload(u.CallbackQuery.Data) {
		return false, r.handleCallback(ctx, u.CallbackQuery)
	}
	if u.Message == nil || chat == nil || user == nil {
		return true, nil
	}

	if chat.IsPrivate() {
		return r.handlePrivateMessage(ctx, u.Message, user)
	}

	switch u.Message.Command() {
	case "report":
		return false, r.handleReportCommand(ctx, u.Message, chat, user)
	case "claim":
		return false, r.handleClaimCommand(ctx, u.Message, chat, user)
	}
	return true, nil
}

func (r *Reports) handleReportCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	if msg.ReplyToMessage == nil {
		responseMsg := api.NewMessage(chat.ID, "Reply to the message you want to report with /report.")
		responseMsg.ReplyParameters.MessageID = msg.MessageID
		responseMsg.ReplyParameters.AllowSendingWithoutReply = true
		_, _ = r.s.GetBot().Send(responseMsg)
		return nil
	}

	reported := msg.ReplyToMessage
	var targetID int64
	if reported.From != nil {
		targetID = reported.From.ID
	}
	rev, err := r.intake.CreateContentReport(ctx, intake.ReportParams{
		ChatID:                 chat.ID,
		ChatTitle:              chat.Title,
		MessageID:              reported.MessageID,
		ReportCommandMessageID: msg.MessageID,
		ReportedByUserID:       user.ID,
		ReporterName:           bot.GetUN(user),
		TargetUserID:           targetID,
		TargetName:             bot.GetUN(reported.From),
		MessageText:            reported.Text + reported.Caption,
	})
	if err != nil {
		return errors.Wrap(err, "create content report")
	}

	log.WithFields(log.Fields{
		"review_id": rev.ID,
		"chat_id":   chat.ID,
	}).Info("report accepted")

	responseMsg := api.NewMessage(chat.ID, "Thanks, the admins have been notified.")
	responseMsg.ReplyParameters.MessageID = msg.MessageID
	responseMsg.ReplyParameters.AllowSendingWithoutReply = true
	_, _ = r.s.GetBot().Send(responseMsg)
	return nil
}

func (r *Reports) handlePrivateMessage(ctx context.Context, msg *api.Message, user *api.User) (bool, error) {
	flushed, err := r.flusher.FlushPending(ctx, user.ID)
	if err != nil {
		log.WithField("telegram_user_id", user.ID).WithError(err).Warn("failed to flush pending notifications")
	} else if flushed > 0 {
		log.WithFields(log.Fields{
			"telegram_user_id": user.ID,
			"flushed":          flushed,
		}).Info("delivered queued notifications")
	}

	if msg.Command() == "queue" {
		pending, err := r.reviews.ListPending(ctx, queueLimit)
		if err != nil {
			return false, errors.Wrap(err, "list pending reviews")
		}
		queueMsg := api.NewMessage(msg.Chat.ID, formatQueue(pending))
		_, _ = r.s.GetBot().Send(queueMsg)
		return false, nil
	}

	if msg.Command() == "start" {
		text := "You're set up. Review notifications will arrive here."
		if webUserID := strings.TrimSpace(msg.CommandArguments()); webUserID != "" {
			if err := r.linkAccount(ctx, webUserID, user.ID); err != nil {
				log.WithField("web_user_id", webUserID).WithError(err).Warn("failed to link account")
				text = "Couldn't link your account, check the link and try again."
			} else {
				text = "Your Telegram account is linked. Review notifications will arrive here."
			}
		}
		welcome := api.NewMessage(msg.Chat.ID, text)
		_, _ = r.s.GetBot().Send(welcome)
		return false, nil
	}
	return true, nil
}

// linkAccount attaches a Telegram identity to an existing web account
// via the /start deep-link payload.
func (r *Reports) linkAccount(ctx context.Context, webUserID string, telegramUserID int64) error {
	webUser, err := r.accounts.GetWebUser(ctx, webUserID)
	if err != nil {
		return errors.Wrap(err, "load web user")
	}
	webUser.TelegramUserID = telegramUserID
	return errors.Wrap(r.accounts.UpsertWebUser(ctx, webUser), "save web user")
}

// handleClaimCommand registers a web account as an admin of the chat.
// Only someone who actually manages the chat may claim it.
func (r *Reports) handleClaimCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	respond := func(text string) {
		responseMsg := api.NewMessage(chat.ID, text)
		responseMsg.ReplyParameters.MessageID = msg.MessageID
		responseMsg.ReplyParameters.AllowSendingWithoutReply = true
		_, _ = r.s.GetBot().Send(responseMsg)
	}

	webUserID := strings.TrimSpace(msg.CommandArguments())
	if webUserID == "" {
		respond("Usage: /claim <account id>")
		return nil
	}

	member, err := r.s.GetBot().GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chat.ID},
			UserID:     user.ID,
		},
	})
	if err != nil {
		return errors.Wrap(err, "get chat member")
	}
	if !member.IsCreator() && !member.IsAdministrator() {
		respond("Only chat admins can claim this chat.")
		return nil
	}

	if _, err := r.accounts.GetWebUser(ctx, webUserID); err != nil {
		respond("Unknown account id.")
		return nil
	}
	if err := r.accounts.LinkChatAdmin(ctx, chat.ID, webUserID); err != nil {
		return errors.Wrap(err, "link chat admin")
	}
	log.WithFields(log.Fields{
		"chat_id":     chat.ID,
		"web_user_id": webUserID,
	}).Info("chat admin linked")
	respond("Linked. This account now receives this chat's reports.")
	return nil
}

func (r *Reports) handleCallback(ctx context.Context, cq *api.CallbackQuery) error {
	contextID, action, err := callback.ParsePayload(cq.Data)
	if err != nil {
		log.WithField("data", cq.Data).WithError(err).Debug("malformed review payload")
		return r.ops.AnswerCallback(ctx, cq.ID, "This button is no longer valid.")
	}

	cc, err := r.callbacks.Resolve(ctx, contextID)
	if err != nil {
		return errors.Wrap(err, "resolve callback context")
	}
	if cc == nil {
		return r.ops.AnswerCallback(ctx, cq.ID, "This button has expired.")
	}

	reviewer := actor.FromTelegramUser(cq.From.ID)
	resolved, err := r.executor.Apply(ctx, cc, action, reviewer)
	if err != nil {
		if errors.Is(err, review.ErrAlreadyResolved) {
			r.cleanupResolvedMessage(ctx, cq, resolved)
			return r.ops.AnswerCallback(ctx, cq.ID, alreadyHandledText(resolved))
		}
		_ = r.ops.AnswerCallback(ctx, cq.ID, "Action failed, try again.")
		return errors.Wrap(err, "apply review action")
	}

	r.cleanupResolvedMessage(ctx, cq, resolved)
	return r.ops.AnswerCallback(ctx, cq.ID, fmt.Sprintf("✓ Marked as %s", action))
}

// cleanupResolvedMessage rewrites the DM the admin tapped so the stale
// keyboard disappears.
func (r *Reports) cleanupResolvedMessage(ctx context.Context, cq *api.CallbackQuery, resolved *db.Review) {
	if cq.Message == nil || resolved == nil {
		return
	}
	text := fmt.Sprintf("Review #%d resolved: %s", resolved.ID, resolved.ActionTaken)
	if err := r.ops.EditMessageRemoveKeyboard(ctx, cq.Message.Chat.ID, cq.Message.MessageID, text); err != nil {
		log.WithField("review_id", resolved.ID).WithError(err).Debug("failed to clean up review message")
	}
}

const queueLimit = 20

func formatQueue(pending []*db.Review) string {
	if len(pending) == 0 {
		return "The review queue is empty."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d pending review(s):\n", len(pending))
	for _, rev := range pending {
		fmt.Fprintf(&b, "#%d %s", rev.ID, rev.Type)
		if title, ok := rev.Context["chat_title"].(string); ok && title != "" {
			fmt.Fprintf(&b, " in %q", title)
		}
		fmt.Fprintf(&b, " (%s)\n", rev.CreatedAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func alreadyHandledText(resolved *db.Review) string {
	if resolved == nil || resolved.ReviewedBy == nil {
		return "Already handled."
	}
	return fmt.Sprintf("Already handled by %s", resolved.ReviewedBy.Tag())
}
