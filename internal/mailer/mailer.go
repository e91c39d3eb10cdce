// Package mailer sends transactional email. Delivery is fire-and-forget: a failed
// send is logged and counted, never returned to the request that triggered it.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/metrics"
	"go.uber.org/zap"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Mailer renders templates and hands the result to a Sender in the background.
type Mailer struct {
	sender  Sender
	log     *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func New(sender Sender, log *zap.Logger) *Mailer {
	return &Mailer{sender: sender, log: logging.OrNop(log), timeout: 30 * time.Second}
}

// Render builds the message for tpl without sending it.
func Render(tpl Template, to string, data any) (Message, error) {
	t, ok := templates[tpl]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", tpl)
	}
	var buf bytes.Buffer
	if err := t.body.Execute(&buf, data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", tpl, err)
	}
	return Message{To: to, Subject: t.subject, HTML: buf.String()}, nil
}

// SendAsync renders and sends in a goroutine. A nil Mailer or an empty recipient is a no-op.
func (m *Mailer) SendAsync(tpl Template, to string, data any) {
	if m == nil || m.sender == nil || to == "" {
		return
	}
	msg, err := Render(tpl, to, data)
	if err != nil {
		metrics.EmailsSent.WithLabelValues(string(tpl), "error").Inc()
		m.log.Error("email render failed", zap.String("template", string(tpl)), zap.Error(err))
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.sender.Send(ctx, msg); err != nil {
			metrics.EmailsSent.WithLabelValues(string(tpl), "error").Inc()
			m.log.Warn("email send failed",
				zap.String("template", string(tpl)),
				zap.String("to", msg.To),
				zap.Error(err),
			)
			return
		}
		metrics.EmailsSent.WithLabelValues(string(tpl), "ok").Inc()
		m.log.Debug("email sent", zap.String("template", string(tpl)), zap.String("to", msg.To))
	}()
}

// Wait blocks until every send started so far has finished.
func (m *Mailer) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}
