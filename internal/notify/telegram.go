package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/modwatch/modqueue/internal/callback"
	"github.com/modwatch/modqueue/internal/db"
)

// PendingTTL is how long a queued DM waits for the recipient to start
// talking to the bot before it is discarded.
const PendingTTL = 30 * 24 * time.Hour

// botSender is the slice of *api.BotAPI the transport needs.
type botSender interface {
	Send(c api.Chattable) (api.Message, error)
}

type pendingStore interface {
	CreatePendingNotification(ctx context.Context, pn *db.PendingNotification) (*db.PendingNotification, error)
}

type TelegramTransport struct {
	bot        botSender
	store      pendingStore
	callbacks  *callback.Store
	pendingTTL time.Duration
}

func NewTelegramTransport(bot botSender, store pendingStore, callbacks *callback.Store) *TelegramTransport {
	return &TelegramTransport{
		bot:        bot,
		store:      store,
		callbacks:  callbacks,
		pendingTTL: PendingTTL,
	}
}

// WithPendingTTL overrides how long queued DMs stay redeliverable.
func (t *TelegramTransport) WithPendingTTL(ttl time.Duration) *TelegramTransport {
	if ttl > 0 {
		t.pendingTTL = ttl
	}
	return t
}

func (t *TelegramTransport) Channel() Channel {
	return ChannelTelegram
}

func (t *TelegramTransport) Send(ctx context.Context, user *db.WebUser, msg Message) (Outcome, error) {
	if user.TelegramUserID == 0 {
		return OutcomeFailed, fmt.Errorf("user %s has no linked telegram account", user.ID)
	}
	select {
	case <-ctx.Done():
		return OutcomeFailed, ctx.Err()
	default:
	}

	text := renderDM(msg.Subject, msg.Body)
	dm := api.NewMessage(user.TelegramUserID, text)
	dm.ParseMode = api.ModeMarkdown
	dm.LinkPreviewOptions.IsDisabled = true

	if msg.Review != nil {
		contextID, err := t.callbacks.Create(ctx, msg.Review.ReviewID, msg.Review.ReviewType, msg.Review.ChatID, msg.Review.TargetUserID)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("create callback context: %w", err)
		}
		markup := reviewKeyboard(contextID)
		dm.ReplyMarkup = &markup
	}

	if _, err := t.bot.Send(dm); err != nil {
		if !isBlockedByUser(err) {
			return OutcomeFailed, fmt.Errorf("send dm: %w", err)
		}
		now := time.Now()
		if _, qErr := t.store.CreatePendingNotification(ctx, &db.PendingNotification{
			TelegramUserID:   user.TelegramUserID,
			NotificationType: string(msg.Event),
			RenderedText:     text,
			CreatedAt:        now,
			ExpiresAt:        now.Add(t.pendingTTL),
		}); qErr != nil {
			return OutcomeFailed, fmt.Errorf("queue pending notification: %w", qErr)
		}
		log.WithFields(log.Fields{
			"telegram_user_id": user.TelegramUserID,
			"event":            msg.Event,
		}).Info("recipient unreachable, notification queued")
		return OutcomeQueued, nil
	}
	return OutcomeDelivered, nil
}

func renderDM(subject, body string) string {
	subject = api.EscapeText(api.ModeMarkdown, subject)
	body = api.EscapeText(api.ModeMarkdown, body)
	return fmt.Sprintf("🔔 *%s*\n\n%s", subject, body)
}

func reviewKeyboard(contextID string) api.InlineKeyboardMarkup {
	return api.NewInlineKeyboardMarkup(
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("🚫 Spam", callback.BuildPayload(contextID, callback.ActionSpam)),
			api.NewInlineKeyboardButtonData("⚠️ Warn", callback.BuildPayload(contextID, callback.ActionWarn)),
		),
		api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData("🔨 Ban", callback.BuildPayload(contextID, callback.ActionTempBan)),
			api.NewInlineKeyboardButtonData("✖️ Dismiss", callback.BuildPayload(contextID, callback.ActionDismiss)),
		),
	)
}

// Telegram reports a recipient who never started or has blocked the bot
// with a 403; the API client only exposes the description text.
func isBlockedByUser(err error) bool {
	text := strings.ToLower(err.Error())
	return strings.Contains(text, "blocked by the user") ||
		strings.Contains(text, "can't initiate conversation") ||
		strings.Contains(text, "user is deactivated") ||
		strings.Contains(text, "chat not found")
}
