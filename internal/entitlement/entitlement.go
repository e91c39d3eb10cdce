// Package entitlement derives how many classes a student may still take with a
// teacher in the current calendar month.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/models"
	"go.uber.org/zap"
)

// DefaultAllowance applies when a package has no classes_per_month set.
const DefaultAllowance = 8

type Store interface {
	IsAssigned(ctx context.Context, teacherID, studentID int64) (bool, error)
	GetActiveSubscription(ctx context.Context, userID int64) (*models.SubscriptionWithPackage, error)
	CountSessions(ctx context.Context, studentID, teacherID int64, statuses []models.SessionStatus, from, to time.Time) (int, error)
}

type Result struct {
	CanStartSession bool      `json:"canStartSession"`
	Allowance       int       `json:"allowance"`
	Completed       int       `json:"completed"`
	Scheduled       int       `json:"scheduled"`
	Used            int       `json:"used"`
	Remaining       int       `json:"remaining"`
	PackageTitle    string    `json:"packageTitle"`
	SubscriptionID  int64     `json:"subscriptionId"`
	WindowStart     time.Time `json:"windowStart"`
	WindowEnd       time.Time `json:"windowEnd"`
}

type Calculator struct {
	store Store
	log   *zap.Logger
}

func NewCalculator(store Store, log *zap.Logger) *Calculator {
	return &Calculator{store: store, log: logging.OrNop(log)}
}

// Check is a pure read: it never writes and never blocks a class by itself.
func (c *Calculator) Check(ctx context.Context, studentID, teacherID int64, now time.Time) (*Result, error) {
	ok, err := c.store.IsAssigned(ctx, teacherID, studentID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !ok {
		return nil, apperr.ErrAccessDenied
	}

	sub, err := c.store.GetActiveSubscription(ctx, studentID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("load subscription: %w", err)
	}

	allowance := Allowance(sub.Package)
	from, to := MonthWindow(now)

	completed, err := c.store.CountSessions(ctx, studentID, teacherID, []models.SessionStatus{models.SessionCompleted}, from, to)
	if err != nil {
		return nil, fmt.Errorf("count completed: %w", err)
	}
	scheduled, err := c.store.CountSessions(ctx, studentID, teacherID, []models.SessionStatus{models.SessionScheduled}, from, to)
	if err != nil {
		return nil, fmt.Errorf("count scheduled: %w", err)
	}

	used := completed + scheduled
	remaining := allowance - used
	res := &Result{
		CanStartSession: remaining > 0,
		Allowance:       allowance,
		Completed:       completed,
		Scheduled:       scheduled,
		Used:            used,
		Remaining:       remaining,
		PackageTitle:    sub.Package.Title,
		SubscriptionID:  sub.ID,
		WindowStart:     from,
		WindowEnd:       to,
	}
	if !res.CanStartSession {
		metrics.EntitlementDenied.Inc()
		c.log.Info("monthly allowance exhausted",
			zap.Int64("student_id", studentID),
			zap.Int64("teacher_id", teacherID),
			zap.Int("allowance", allowance),
			zap.Int("used", used),
		)
	}
	return res, nil
}

// Allowance is the package's monthly class count, or DefaultAllowance when unset.
func Allowance(p models.Package) int {
	if p.ClassesPerMonth == nil || *p.ClassesPerMonth <= 0 {
		return DefaultAllowance
	}
	return *p.ClassesPerMonth
}

// MonthWindow returns the first and last instant of now's calendar month in now's location.
// The end is one microsecond before the next month, matching postgres timestamp precision.
func MonthWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 1, 0).Add(-time.Microsecond)
	return start, end
}
