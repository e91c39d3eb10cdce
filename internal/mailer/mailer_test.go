package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Spok95/learning-platform/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	done chan struct{}
}

func (c *captureSender) Send(_ context.Context, msg Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, msg)
	c.mu.Unlock()
	c.done <- struct{}{}
	return c.err
}

func TestRender_EscapesHTML(t *testing.T) {
	msg, err := Render(ClassCompleted, "s@example.com", Data{Name: "<b>Ann</b>", Teacher: "Bob", Minutes: 30, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "Class summary", msg.Subject)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ann&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "30 min")
	assert.Contains(t, msg.HTML, "Notes: ok")
}

func TestRender_Unknown(t *testing.T) {
	_, err := Render(Template("nope"), "x@example.com", nil)
	assert.Error(t, err)
}

func TestSendAsync_DeliversAndSwallowsErrors(t *testing.T) {
	for name, sendErr := range map[string]error{"ok": nil, "failure": errors.New("relay down")} {
		t.Run(name, func(t *testing.T) {
			s := &captureSender{err: sendErr, done: make(chan struct{}, 1)}
			New(s, nil).SendAsync(Welcome, "new@example.com", Data{Name: "Ann"})

			select {
			case <-s.done:
			case <-time.After(2 * time.Second):
				t.Fatal("message was not sent")
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			require.Len(t, s.msgs, 1)
			assert.Equal(t, "new@example.com", s.msgs[0].To)
		})
	}
}

func TestSendAsync_NoRecipientOrNilMailer(t *testing.T) {
	s := &captureSender{done: make(chan struct{}, 1)}
	New(s, nil).SendAsync(Welcome, "", Data{})
	var m *Mailer
	m.SendAsync(Welcome, "x@example.com", Data{})

	select {
	case <-s.done:
		t.Fatal("nothing should be sent")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "mail.local", Port: 2525, Username: "u", Password: "p", From: "noreply@example.com"})
	var gotAddr string
	var gotBody []byte
	var gotAuth smtp.Auth
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotBody = addr, a, msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), Message{To: "a@example.com", Subject: "Hi", HTML: "<p>x</p>"}))
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.NotNil(t, gotAuth)
	body := string(gotBody)
	assert.True(t, strings.HasPrefix(body, "From: noreply@example.com\r\n"))
	assert.Contains(t, body, "Subject: Hi\r\n")
	assert.Contains(t, body, "Content-Type: text/html; charset=UTF-8")
	assert.True(t, strings.HasSuffix(body, "<p>x</p>"))
}
