// Package classes runs the class lifecycle: scheduling, starting and ending a
// lesson, and pricing the teacher's time when it ends.
package classes

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/db"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/tg"
	"go.uber.org/zap"
)

type Store interface {
	IsAssigned(ctx context.Context, teacherID, studentID int64) (bool, error)
	GetActiveSubscription(ctx context.Context, userID int64) (*models.SubscriptionWithPackage, error)
	CreateSession(ctx context.Context, cs *models.ClassSession) error
	FindInProgress(ctx context.Context, studentID, teacherID int64) (*models.ClassSession, error)
	CompleteSession(ctx context.Context, c models.SessionCompletion) error
	GetSession(ctx context.Context, id int64) (*models.ClassSession, error)
	ListSessions(ctx context.Context, f db.SessionFilter) ([]models.ClassSession, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Emailer interface {
	SendAsync(tpl mailer.Template, to string, data any)
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string)
}

type Service struct {
	store      Store
	hourlyRate float64
	mail       Emailer
	notify     Notifier
	locks      *studentLocks
	log        *zap.Logger
}

// New wires the service. mail and notify may be nil.
func New(store Store, hourlyRate float64, mail Emailer, notify Notifier, log *zap.Logger) *Service {
	return &Service{
		store:      store,
		hourlyRate: hourlyRate,
		mail:       mail,
		notify:     notify,
		locks:      newStudentLocks(),
		log:        logging.OrNop(log),
	}
}

// Earnings prices minutes at hourlyRate, rounded to cents.
func Earnings(minutes int, hourlyRate float64) float64 {
	return math.Round(float64(minutes)*hourlyRate/60*100) / 100
}

// Start opens an IN_PROGRESS session. It does not consult the monthly allowance:
// callers check entitlement first.
func (s *Service) Start(ctx context.Context, teacherID, studentID int64, now time.Time) (*models.ClassSession, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	sub, err := s.eligibleSubscription(ctx, teacherID, studentID)
	if err != nil {
		return nil, err
	}

	cs := &models.ClassSession{
		StudentID:       studentID,
		TeacherID:       teacherID,
		SubscriptionID:  sub.ID,
		StartTime:       now,
		DurationMinutes: sub.Package.ClassDurationMinutes,
		Status:          models.SessionInProgress,
	}
	if err := s.store.CreateSession(ctx, cs); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.SessionsStarted.Inc()
	s.log.Info("class started",
		zap.Int64("session_id", cs.ID),
		zap.Int64("teacher_id", teacherID),
		zap.Int64("student_id", studentID),
	)
	return cs, nil
}

// End completes the most recent IN_PROGRESS session of the pair. The session update,
// the subscription counter and the earnings upsert commit together or not at all.
func (s *Service) End(ctx context.Context, teacherID, studentID int64, notes string, now time.Time) (*models.ClassSession, error) {
	unlock := s.locks.lock(studentID)
	defer unlock()

	cs, err := s.store.FindInProgress(ctx, studentID, teacherID)
	if err != nil {
		return nil, err
	}

	minutes := int(now.Sub(cs.StartTime) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	c := models.SessionCompletion{
		SessionID:       cs.ID,
		SubscriptionID:  cs.SubscriptionID,
		TeacherID:       teacherID,
		EndTime:         now,
		DurationMinutes: minutes,
		Earning:         Earnings(minutes, s.hourlyRate),
	}
	if notes != "" {
		c.Notes = &notes
	}
	if err := s.store.CompleteSession(ctx, c); err != nil {
		return nil, fmt.Errorf("complete session %d: %w", cs.ID, err)
	}
	metrics.SessionsCompleted.Inc()

	done, err := s.store.GetSession(ctx, cs.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session %d: %w", cs.ID, err)
	}
	s.log.Info("class completed",
		zap.Int64("session_id", cs.ID),
		zap.Int("minutes", minutes),
		zap.Float64("earning", c.Earning),
	)
	s.announce(ctx, done)
	return done, nil
}

// Schedule books a future class. Like Start it leaves the allowance check to the caller.
func (s *Service) Schedule(ctx context.Context, teacherID, studentID int64, startAt, now time.Time) (*models.ClassSession, error) {
	if !startAt.After(now) {
		return nil, apperr.ValidationError{Field: "startTime", Message: "must be in the future"}
	}
	sub, err := s.eligibleSubscription(ctx, teacherID, studentID)
	if err != nil {
		return nil, err
	}
	cs := &models.ClassSession{
		StudentID:       studentID,
		TeacherID:       teacherID,
		SubscriptionID:  sub.ID,
		StartTime:       startAt,
		DurationMinutes: sub.Package.ClassDurationMinutes,
		Status:          models.SessionScheduled,
	}
	if err := s.store.CreateSession(ctx, cs); err != nil {
		return nil, fmt.Errorf("schedule session: %w", err)
	}
	return cs, nil
}

func (s *Service) ListForTeacher(ctx context.Context, teacherID int64, from, to time.Time) ([]models.ClassSession, error) {
	return s.store.ListSessions(ctx, db.SessionFilter{TeacherID: teacherID, From: from, To: to})
}

func (s *Service) ListForStudent(ctx context.Context, studentID int64, from, to time.Time) ([]models.ClassSession, error) {
	return s.store.ListSessions(ctx, db.SessionFilter{StudentID: studentID, From: from, To: to})
}

func (s *Service) eligibleSubscription(ctx context.Context, teacherID, studentID int64) (*models.SubscriptionWithPackage, error) {
	ok, err := s.store.IsAssigned(ctx, teacherID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("student %d is not assigned to teacher %d: %w", studentID, teacherID, apperr.ErrForbidden)
	}
	sub, err := s.store.GetActiveSubscription(ctx, studentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, fmt.Errorf("student %d: %w", studentID, apperr.ErrNoActiveSubscription)
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return sub, nil
}

// announce mails the student a summary and pings the teacher. Failures only get logged.
func (s *Service) announce(ctx context.Context, cs *models.ClassSession) {
	student, err := s.store.GetUserByID(ctx, cs.StudentID)
	if err != nil {
		s.log.Warn("class summary: load student", zap.Int64("student_id", cs.StudentID), zap.Error(err))
		return
	}
	teacher, err := s.store.GetUserByID(ctx, cs.TeacherID)
	if err != nil {
		s.log.Warn("class summary: load teacher", zap.Int64("teacher_id", cs.TeacherID), zap.Error(err))
		return
	}
	if s.mail != nil {
		data := mailer.Data{Name: student.FullName, Teacher: teacher.FullName, Minutes: cs.DurationMinutes}
		if cs.Notes != nil {
			data.Notes = *cs.Notes
		}
		s.mail.SendAsync(mailer.ClassCompleted, student.Email, data)
	}
	if s.notify != nil && teacher.TelegramChatID != nil {
		s.notify.Notify(ctx, *teacher.TelegramChatID, tg.ClassCompletedText(student.FullName, cs.DurationMinutes, cs.Earning))
	}
}
