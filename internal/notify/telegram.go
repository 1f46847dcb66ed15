package notify

import (
	"context"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"gridwatch/logger"
)

// Telegram sends alerts to one chat as HTML-formatted messages, falling
// back to plain text when the markup is rejected.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    *logrus.Entry
}

// NewTelegram authenticates the bot token and binds the channel to chatID.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect to telegram: %w", err)
	}
	bot.Debug = false

	log := logger.WithComponent("telegram")
	log.WithField("bot", bot.Self.UserName).Info("telegram channel ready")
	return &Telegram{bot: bot, chatID: chatID, log: log}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send delivers one message. The first line is bolded; listing names can
// contain markup-significant characters, so a parse failure retries the
// message unformatted.
func (t *Telegram) Send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(t.chatID, boldFirstLine(text))
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		t.log.WithError(err).Warn("html message rejected, retrying as plain text")
		plain := tgbotapi.NewMessage(t.chatID, text)
		plain.DisableWebPagePreview = true
		if _, err := t.bot.Send(plain); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

func boldFirstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return "<b>" + html.EscapeString(text[:i]) + "</b>" + html.EscapeString(text[i:])
		}
	}
	return "<b>" + html.EscapeString(text) + "</b>"
}
