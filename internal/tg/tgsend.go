package tg

import (
	"context"
	"strings"

	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/observability"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Считаем системными: 5xx, 429, timeout. 400-ки и типичные телеграм-валидации в Sentry не шлём.
func isSystemErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	if strings.Contains(s, "429") || strings.Contains(s, "502") || strings.Contains(s, "503") || strings.Contains(s, "timeout") {
		return true
	}
	return false
}

// Sender is the subset of *tgbotapi.BotAPI used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier pushes short plain-text notices to teachers who linked a Telegram chat.
// A Notifier built without a bot drops every message.
type Notifier struct {
	bot Sender
	log *zap.Logger
}

func NewNotifier(bot Sender, log *zap.Logger) *Notifier {
	return &Notifier{bot: bot, log: logging.OrNop(log)}
}

// NewBotNotifier connects with token; an empty token yields a disabled notifier.
func NewBotNotifier(token string, log *zap.Logger) (*Notifier, error) {
	if token == "" {
		return NewNotifier(nil, log), nil
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return NewNotifier(bot, log), nil
}

func (n *Notifier) Notify(_ context.Context, chatID int64, text string) {
	if n == nil || n.bot == nil || chatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		if isSystemErr(err) {
			observability.CaptureErr(err)
		}
		n.log.Warn("telegram notify failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
