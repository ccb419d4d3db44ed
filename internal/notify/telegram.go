package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramRecipient delivers alerts to a single whitelisted chat,
// matching the authorized-chat-only model used elsewhere in the fleet
// for inbound commands.
type telegramRecipient struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramRecipient builds a Recipient that sends to chatID via a
// bot authenticated with token.
func NewTelegramRecipient(token string, chatID int64) (Recipient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	return &telegramRecipient{bot: bot, chatID: chatID}, nil
}

func (t *telegramRecipient) Name() string { return "telegram" }

func (t *telegramRecipient) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	_, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	return nil
}
