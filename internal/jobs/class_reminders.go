package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/tg"
	"go.uber.org/zap"
)

type ReminderStore interface {
	DueForReminder(ctx context.Context, now time.Time, within time.Duration, batch int) ([]models.ClassSession, error)
	MarkReminded(ctx context.Context, ids []int64) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Emailer interface {
	SendAsync(tpl mailer.Template, to string, data any)
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string)
}

// ClassReminders nudges students (and teachers with a linked chat) about
// classes starting within the next Within.
type ClassReminders struct {
	Store  ReminderStore
	Mail   Emailer
	Notify Notifier
	Log    *zap.Logger
	Loc    *time.Location
	Within time.Duration
	Batch  int
	Now    func() time.Time
}

func (r *ClassReminders) Run(ctx context.Context) error {
	_, err := r.Process(ctx)
	return err
}

// Process sends one batch and returns how many sessions were marked reminded.
func (r *ClassReminders) Process(ctx context.Context) (int, error) {
	log := logging.OrNop(r.Log)
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	within, batch := r.Within, r.Batch
	if within <= 0 {
		within = 24 * time.Hour
	}
	if batch <= 0 {
		batch = 100
	}
	loc := r.Loc
	if loc == nil {
		loc = time.Local
	}

	// 1) Кандидаты на напоминание
	due, err := r.Store.DueForReminder(ctx, now, within, batch)
	if err != nil {
		return 0, fmt.Errorf("due for reminder: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	// 2) Отправка
	done := make([]int64, 0, len(due))
	for _, cs := range due {
		student, err := r.Store.GetUserByID(ctx, cs.StudentID)
		if err != nil {
			log.Warn("reminder: load student", zap.Int64("session_id", cs.ID), zap.Error(err))
			classReminders.WithLabelValues("lookup", "failed").Inc()
			continue
		}
		teacher, err := r.Store.GetUserByID(ctx, cs.TeacherID)
		if err != nil {
			log.Warn("reminder: load teacher", zap.Int64("session_id", cs.ID), zap.Error(err))
			classReminders.WithLabelValues("lookup", "failed").Inc()
			continue
		}
		at := cs.StartTime.In(loc).Format(tg.TimeLayout)
		if r.Mail != nil {
			r.Mail.SendAsync(mailer.ClassReminder, student.Email, mailer.Data{
				Name:      student.FullName,
				Teacher:   teacher.FullName,
				StartTime: at,
			})
			classReminders.WithLabelValues("email", "queued").Inc()
		}
		switch {
		case r.Notify == nil:
		case teacher.TelegramChatID == nil:
			classReminders.WithLabelValues("telegram", "no_chat").Inc()
		default:
			r.Notify.Notify(ctx, *teacher.TelegramChatID, tg.ClassReminderText(student.FullName, at))
			classReminders.WithLabelValues("telegram", "queued").Inc()
		}
		done = append(done, cs.ID)
	}

	// 3) Пометка
	if err := r.Store.MarkReminded(ctx, done); err != nil {
		return 0, fmt.Errorf("mark reminded: %w", err)
	}
	log.Info("class reminders sent", zap.Int("count", len(done)))
	return len(done), nil
}
