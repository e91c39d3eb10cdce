package db

import (
	"context"
	"fmt"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const subscriptionColumns = `s.id, s.user_id, s.package_id, s.status, s.start_date, s.end_date,
	s.classes_completed, s.auto_renew, s.stripe_subscription_id, s.created_at, s.updated_at`

const subscriptionWithPackageColumns = subscriptionColumns + `,
	p.id AS "package.id", p.title AS "package.title", p.price_cents AS "package.price_cents",
	p.currency AS "package.currency", p.billing_frequency AS "package.billing_frequency",
	p.class_duration_minutes AS "package.class_duration_minutes",
	p.classes_per_month AS "package.classes_per_month", p.stripe_price_id AS "package.stripe_price_id",
	p.created_at AS "package.created_at"`

// GetActiveSubscription returns the user's ACTIVE subscription together with its package.
func (s *Store) GetActiveSubscription(ctx context.Context, userID int64) (*models.SubscriptionWithPackage, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var sub models.SubscriptionWithPackage
	err := s.db.GetContext(ctx, &sub, `
		SELECT `+subscriptionWithPackageColumns+`
		FROM subscriptions s
		JOIN packages p ON p.id = s.package_id
		WHERE s.user_id = $1 AND s.status = 'ACTIVE'
		ORDER BY s.start_date DESC
		LIMIT 1
	`, userID)
	if err != nil {
		return nil, notFound(err, "active subscription")
	}
	return &sub, nil
}

func (s *Store) GetSubscription(ctx context.Context, id int64) (*models.Subscription, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	var sub models.Subscription
	if err := s.db.GetContext(ctx, &sub, `SELECT `+subscriptionColumns+` FROM subscriptions s WHERE s.id = $1`, id); err != nil {
		return nil, notFound(err, "subscription")
	}
	return &sub, nil
}

func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID int64) ([]models.Subscription, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	out := []models.Subscription{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		WHERE s.user_id = $1
		ORDER BY s.start_date DESC, s.id DESC
	`, userID)
	return out, err
}

// ListSubscriptionsByStatus lists subscriptions in any of the given statuses, with packages.
func (s *Store) ListSubscriptionsByStatus(ctx context.Context, statuses ...models.SubscriptionStatus) ([]models.SubscriptionWithPackage, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	out := []models.SubscriptionWithPackage{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+subscriptionWithPackageColumns+`
		FROM subscriptions s
		JOIN packages p ON p.id = s.package_id
		WHERE s.status = ANY($1)
		ORDER BY s.end_date NULLS LAST, s.id
	`, pq.Array(names))
	return out, err
}

// ActivateSubscription expires whatever ACTIVE row the user has and inserts sub as the new ACTIVE one.
func (s *Store) ActivateSubscription(ctx context.Context, sub *models.Subscription) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	sub.Status = models.SubscriptionActive
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET status = 'EXPIRED', updated_at = now()
			WHERE user_id = $1 AND status = 'ACTIVE'
		`, sub.UserID); err != nil {
			return fmt.Errorf("expire previous: %w", err)
		}
		return insertSubscription(ctx, tx, sub)
	})
}

// RenewSubscription marks oldID EXPIRED and inserts next, atomically.
// It fails with ErrConflict if oldID is no longer ACTIVE.
func (s *Store) RenewSubscription(ctx context.Context, oldID int64, next *models.Subscription) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	next.Status = models.SubscriptionActive
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE subscriptions SET status = 'EXPIRED', updated_at = now()
			WHERE id = $1 AND status = 'ACTIVE'
		`, oldID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("subscription %d is not active: %w", oldID, apperr.ErrConflict)
		}
		return insertSubscription(ctx, tx, next)
	})
}

func insertSubscription(ctx context.Context, q querier, sub *models.Subscription) error {
	return q.QueryRowxContext(ctx, `
		INSERT INTO subscriptions (user_id, package_id, status, start_date, end_date, classes_completed, auto_renew, stripe_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`, sub.UserID, sub.PackageID, string(sub.Status), sub.StartDate, sub.EndDate, sub.ClassesCompleted, sub.AutoRenew, sub.StripeSubscriptionID).
		Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
}

func (s *Store) CancelSubscription(ctx context.Context, id int64, at time.Time) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET status = 'CANCELLED', auto_renew = false, end_date = COALESCE(end_date, $2), updated_at = now()
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("active subscription %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// FindSubscriptionByStripeID returns the newest row carrying stripeID whose status is one of
// statuses (any status when none are given).
func (s *Store) FindSubscriptionByStripeID(ctx context.Context, stripeID string, statuses ...models.SubscriptionStatus) (*models.Subscription, error) {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	var sub models.Subscription
	err := s.db.GetContext(ctx, &sub, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		WHERE s.stripe_subscription_id = $1
		  AND (cardinality($2::text[]) = 0 OR s.status = ANY($2))
		ORDER BY s.start_date DESC, s.id DESC
		LIMIT 1
	`, stripeID, pq.Array(names))
	if err != nil {
		return nil, notFound(err, "subscription "+stripeID)
	}
	return &sub, nil
}

// UpdateSubscriptionStatusByStripeID applies a processor-side status change to the newest
// live row for stripeID. EXPIRED and CANCELLED rows are final and never match.
// A change that would give the user a second ACTIVE row fails with ErrConflict.
func (s *Store) UpdateSubscriptionStatusByStripeID(ctx context.Context, stripeID string, status models.SubscriptionStatus) error {
	ctx, cancel := dbCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = now()
		WHERE id = (
			SELECT id FROM subscriptions
			WHERE stripe_subscription_id = $1 AND status NOT IN ('EXPIRED', 'CANCELLED')
			ORDER BY start_date DESC, id DESC
			LIMIT 1
		)
	`, stripeID, string(status))
	if isUniqueViolation(err) {
		return fmt.Errorf("user already has another active subscription: %w", apperr.ErrConflict)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subscription %s: %w", stripeID, apperr.ErrNotFound)
	}
	return nil
}
