package tg

import (
	"context"
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, f.err
}

func TestNotify(t *testing.T) {
	bot := &fakeBot{}
	n := NewNotifier(bot, nil)

	n.Notify(context.Background(), 42, "class finished")
	n.Notify(context.Background(), 0, "no chat linked")

	require.Len(t, bot.sent, 1)
	assert.Equal(t, int64(42), bot.sent[0].ChatID)
	assert.Equal(t, "class finished", bot.sent[0].Text)
}

func TestNotify_DisabledAndFailing(t *testing.T) {
	n, err := NewBotNotifier("", nil)
	require.NoError(t, err)
	n.Notify(context.Background(), 42, "dropped")

	bot := &fakeBot{err: errors.New("Bad Request: chat not found")}
	NewNotifier(bot, nil).Notify(context.Background(), 42, "x")
	assert.Len(t, bot.sent, 1)
}

func TestIsSystemErr(t *testing.T) {
	assert.True(t, isSystemErr(errors.New("Too Many Requests: 429")))
	assert.True(t, isSystemErr(errors.New("i/o timeout")))
	assert.False(t, isSystemErr(errors.New("Bad Request: message is not modified")))
	assert.False(t, isSystemErr(nil))
}

func TestMessageTexts(t *testing.T) {
	assert.Equal(t, "Class with Ann Lee completed: 45 min, earned 3.00", ClassCompletedText("Ann Lee", 45, 3))
	assert.Equal(t, "Reminder: class with Ann Lee at Tue, Jun 10 2025 12:00", ClassReminderText("Ann Lee", "Tue, Jun 10 2025 12:00"))
}
