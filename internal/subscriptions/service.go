// Package subscriptions manages a user's enrollment: activation after checkout,
// manual renewal, cancellation and the renewal scan.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/mailer"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/models"
	"go.uber.org/zap"
)

const (
	// RenewalWindowDays is how close to the end date a manual renewal is accepted.
	RenewalWindowDays = 7
	// ManualRenewalPeriodDays is the length of a manually renewed period. It does not
	// follow the package billing frequency; see DESIGN.md.
	ManualRenewalPeriodDays = 30
)

type Store interface {
	GetActiveSubscription(ctx context.Context, userID int64) (*models.SubscriptionWithPackage, error)
	ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error)
	ListSubscriptionsByStatus(ctx context.Context, statuses ...models.SubscriptionStatus) ([]models.SubscriptionWithPackage, error)
	ActivateSubscription(ctx context.Context, sub *models.Subscription) error
	RenewSubscription(ctx context.Context, oldID int64, next *models.Subscription) error
	CancelSubscription(ctx context.Context, id int64, at time.Time) error
	UpdateSubscriptionStatusByStripeID(ctx context.Context, stripeID string, status models.SubscriptionStatus) error
	FindSubscriptionByStripeID(ctx context.Context, stripeID string, statuses ...models.SubscriptionStatus) (*models.Subscription, error)
	GetPackage(ctx context.Context, id int64) (*models.Package, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

type Emailer interface {
	SendAsync(tpl mailer.Template, to string, data any)
}

// Processor stops billing on the payment processor side.
type Processor interface {
	CancelSubscription(ctx context.Context, stripeSubID string) error
}

type Service struct {
	store     Store
	mail      Emailer
	processor Processor
	log       *zap.Logger
}

// New builds the service. processor may be nil when payments are not configured;
// cancellations are then local only.
func New(store Store, mail Emailer, processor Processor, log *zap.Logger) *Service {
	return &Service{store: store, mail: mail, processor: processor, log: logging.OrNop(log)}
}

// Current returns the user's ACTIVE subscription with its package.
func (s *Service) Current(ctx context.Context, userID int64) (*models.SubscriptionWithPackage, error) {
	sub, err := s.store.GetActiveSubscription(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrNoActiveSubscription
	}
	return sub, err
}

func (s *Service) History(ctx context.Context, userID int64) ([]models.Subscription, error) {
	return s.store.ListSubscriptionsByUser(ctx, userID)
}

// Cancel stops the ACTIVE subscription and turns auto-renew off. A subscription paid
// through Stripe is cancelled there first; if that fails nothing changes locally.
func (s *Service) Cancel(ctx context.Context, userID int64, now time.Time) error {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		return err
	}
	if cur.StripeSubscriptionID != nil && *cur.StripeSubscriptionID != "" {
		stripeID := *cur.StripeSubscriptionID
		if s.processor == nil {
			metrics.Cancellations.WithLabelValues("skipped").Inc()
			s.log.Warn("payment processor not configured, cancelling locally only",
				zap.Int64("subscription_id", cur.ID), zap.String("stripe_subscription_id", stripeID))
		} else {
			if err := s.processor.CancelSubscription(ctx, stripeID); err != nil {
				metrics.Cancellations.WithLabelValues("error").Inc()
				return fmt.Errorf("cancel %s at payment processor: %w", stripeID, err)
			}
			metrics.Cancellations.WithLabelValues("cancelled").Inc()
		}
	} else {
		metrics.Cancellations.WithLabelValues("none").Inc()
	}
	if err := s.store.CancelSubscription(ctx, cur.ID, now); err != nil {
		return fmt.Errorf("cancel subscription %d: %w", cur.ID, err)
	}
	s.log.Info("subscription cancelled", zap.Int64("user_id", userID), zap.Int64("subscription_id", cur.ID))
	return nil
}

// Activate records a paid checkout: the previous ACTIVE row, if any, expires and a new
// one covering the package's billing period starts now. A checkout whose Stripe
// subscription already has a live row is a redelivery and returns that row unchanged.
func (s *Service) Activate(ctx context.Context, userID, packageID int64, stripeSubID string, now time.Time) (*models.Subscription, error) {
	if stripeSubID != "" {
		existing, err := s.store.FindSubscriptionByStripeID(ctx, stripeSubID,
			models.SubscriptionActive, models.SubscriptionPending)
		switch {
		case err == nil:
			metrics.Activations.WithLabelValues("skipped_existing").Inc()
			s.log.Info("checkout already applied",
				zap.Int64("user_id", userID),
				zap.Int64("subscription_id", existing.ID),
				zap.String("stripe_subscription_id", stripeSubID),
			)
			return existing, nil
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, fmt.Errorf("look up %s: %w", stripeSubID, err)
		}
	}

	pkg, err := s.store.GetPackage(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("load package %d: %w", packageID, err)
	}
	end := now.AddDate(0, pkg.BillingFrequency.Months(), 0)
	sub := &models.Subscription{
		UserID:    userID,
		PackageID: pkg.ID,
		StartDate: now,
		EndDate:   &end,
		AutoRenew: true,
	}
	if stripeSubID != "" {
		sub.StripeSubscriptionID = &stripeSubID
	}
	if err := s.store.ActivateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("activate subscription: %w", err)
	}
	metrics.Activations.WithLabelValues("activated").Inc()
	s.log.Info("subscription activated",
		zap.Int64("user_id", userID),
		zap.Int64("subscription_id", sub.ID),
		zap.String("package", pkg.Title),
	)
	s.email(ctx, userID, mailer.SubscriptionActivated, mailer.Data{Package: pkg.Title, EndDate: end.Format("2006-01-02")})
	return sub, nil
}

// DaysUntil is the number of started days between now and end, never negative.
func DaysUntil(end, now time.Time) int {
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// RenewManual extends the ACTIVE subscription by a fixed period. It is only accepted
// within RenewalWindowDays of the current end date.
func (s *Service) RenewManual(ctx context.Context, userID int64, now time.Time) (*models.Subscription, error) {
	cur, err := s.Current(ctx, userID)
	if err != nil {
		metrics.Renewals.WithLabelValues("rejected").Inc()
		return nil, err
	}
	if cur.EndDate == nil {
		metrics.Renewals.WithLabelValues("rejected").Inc()
		return nil, apperr.ValidationError{Field: "endDate", Message: "subscription has no end date to renew from"}
	}
	if days := DaysUntil(*cur.EndDate, now); days > RenewalWindowDays {
		metrics.Renewals.WithLabelValues("too_early").Inc()
		return nil, apperr.TooEarlyError{DaysRemaining: days}
	}

	start := cur.EndDate.AddDate(0, 0, 1)
	end := start.AddDate(0, 0, ManualRenewalPeriodDays)
	// the new period stays linked to the same Stripe subscription so webhook events keep applying
	next := &models.Subscription{
		UserID:               cur.UserID,
		PackageID:            cur.PackageID,
		StartDate:            start,
		EndDate:              &end,
		AutoRenew:            cur.AutoRenew,
		StripeSubscriptionID: cur.StripeSubscriptionID,
	}
	if err := s.store.RenewSubscription(ctx, cur.ID, next); err != nil {
		metrics.Renewals.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("renew subscription %d: %w", cur.ID, err)
	}
	metrics.Renewals.WithLabelValues("renewed").Inc()
	s.log.Info("subscription renewed",
		zap.Int64("user_id", userID),
		zap.Int64("previous_id", cur.ID),
		zap.Int64("subscription_id", next.ID),
		zap.Time("start", start),
		zap.Time("end", end),
	)
	s.email(ctx, userID, mailer.SubscriptionRenewed, mailer.Data{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	})
	return next, nil
}

type RenewalCandidate struct {
	SubscriptionID int64     `json:"subscriptionId"`
	UserID         int64     `json:"userId"`
	PackageTitle   string    `json:"packageTitle"`
	EndDate        time.Time `json:"endDate"`
	DaysLeft       int       `json:"daysLeft"`
	AutoRenew      bool      `json:"autoRenew"`
}

type RenewalReport struct {
	Total     int                `json:"total"`
	Due       []RenewalCandidate `json:"due"`
	AutoRenew int                `json:"autoRenew"`
	OpenEnded int                `json:"openEnded"`
	ScannedAt time.Time          `json:"scannedAt"`
}

// ScanForRenewal walks ACTIVE subscriptions and reports the ones inside the renewal
// window. Charging and renewing them automatically is not implemented yet.
func (s *Service) ScanForRenewal(ctx context.Context, now time.Time) (*RenewalReport, error) {
	subs, err := s.store.ListSubscriptionsByStatus(ctx, models.SubscriptionActive)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	rep := &RenewalReport{Total: len(subs), Due: []RenewalCandidate{}, ScannedAt: now}
	for _, sub := range subs {
		if sub.EndDate == nil {
			rep.OpenEnded++
			continue
		}
		days := DaysUntil(*sub.EndDate, now)
		if days > RenewalWindowDays {
			continue
		}
		c := RenewalCandidate{
			SubscriptionID: sub.ID,
			UserID:         sub.UserID,
			PackageTitle:   sub.Package.Title,
			EndDate:        *sub.EndDate,
			DaysLeft:       days,
			AutoRenew:      sub.AutoRenew,
		}
		rep.Due = append(rep.Due, c)
		if sub.AutoRenew {
			rep.AutoRenew++
		}
		s.log.Info("subscription due for renewal",
			zap.Int64("subscription_id", sub.ID),
			zap.Int64("user_id", sub.UserID),
			zap.Int("days_left", days),
			zap.Bool("auto_renew", sub.AutoRenew),
		)
	}
	s.log.Info("renewal scan finished",
		zap.Int("active", rep.Total),
		zap.Int("due", len(rep.Due)),
		zap.Int("auto_renew", rep.AutoRenew),
	)
	return rep, nil
}

func (s *Service) UpdateStatusByStripeID(ctx context.Context, stripeSubID string, status models.SubscriptionStatus) error {
	if !status.Valid() {
		return apperr.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	return s.store.UpdateSubscriptionStatusByStripeID(ctx, stripeSubID, status)
}

func (s *Service) email(ctx context.Context, userID int64, tpl mailer.Template, data mailer.Data) {
	if s.mail == nil {
		return
	}
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		s.log.Warn("email: load user", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	data.Name = u.FullName
	s.mail.SendAsync(tpl, u.Email, data)
}
