package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

// TempBanDuration is how long a ban verdict keeps the offender out.
const TempBanDuration = 10 * time.Minute

var ErrNoPrivileges = fmt.Errorf("no privileges")

// Operations wraps the raw bot API with the calls the action executor
// needs.
type Operations struct {
	bot requester
}

type requester interface {
	Request(c api.Chattable) (*api.APIResponse, error)
	Send(c api.Chattable) (api.Message, error)
}

func NewOperations(bot requester) *Operations {
	return &Operations{bot: bot}
}

// DeleteMessage deletes a message from a chat.
func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID))
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	return nil
}

// BanUser temporarily bans a user from a chat, revoking their messages.
func (o *Operations) BanUser(ctx context.Context, userID int64, chatID int64) error {
	config := api.BanChatMemberConfig{
		ChatMemberConfig: api.ChatMemberConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		},
		UntilDate:      time.Now().Add(TempBanDuration).Unix(),
		RevokeMessages: true,
	}
	_, err := o.bot.Request(config)
	if err != nil {
		if strings.Contains(err.Error(), "not enough rights") {
			return ErrNoPrivileges
		}
		return fmt.Errorf("failed to ban user: %w", err)
	}
	return nil
}

// SendReply posts a message into a chat as a reply to another message.
func (o *Operations) SendReply(ctx context.Context, chatID int64, replyToMessageID int, text string) error {
	msg := api.NewMessage(chatID, text)
	msg.ReplyParameters.MessageID = replyToMessageID
	msg.ReplyParameters.AllowSendingWithoutReply = true
	msg.LinkPreviewOptions.IsDisabled = true
	if _, err := o.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges a callback query with a toast.
func (o *Operations) AnswerCallback(ctx context.Context, callbackQueryID string, text string) error {
	if _, err := o.bot.Request(api.NewCallback(callbackQueryID, text)); err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

// EditMessageRemoveKeyboard strips the inline keyboard from a message
// after its review has been resolved.
func (o *Operations) EditMessageRemoveKeyboard(ctx context.Context, chatID int64, messageID int, text string) error {
	edit := api.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = api.ModeMarkdown
	if _, err := o.bot.Request(edit); err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}
	return nil
}
