package notification

import (
	"bytes"
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// MessageSender is the part of *tgbotapi.BotAPI the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier pushes alerts to one chat through the Bot API.
type TelegramNotifier struct {
	bot    MessageSender
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier.
// bot: a connected *tgbotapi.BotAPI (shared with the inbound query bot)
// chatID: target chat/group/channel ID
func NewTelegramNotifier(bot MessageSender, chatID int64) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, chatID: chatID}
}

func (t *TelegramNotifier) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	emoji := "ℹ️"
	switch alert.Level {
	case AlertWarning:
		emoji = "⚠️"
	case AlertCritical:
		emoji = "🚨"
	}

	msg := tgbotapi.NewMessage(t.chatID,
		fmt.Sprintf("%s *%s*\n\n%s", emoji, escapeMarkdown(alert.Title), escapeMarkdown(alert.Message)))
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}

	log.Printf("[telegram] sent alert: %s", alert.Title)
	return nil
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	specials := []byte{'_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!'}
	var buf bytes.Buffer
	for i := 0; i < len(s); i++ {
		for _, sp := range specials {
			if s[i] == sp {
				buf.WriteByte('\\')
				break
			}
		}
		buf.WriteByte(s[i])
	}
	return buf.String()
}
