package models

import "time"

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "ACTIVE"
	SubscriptionPending   SubscriptionStatus = "PENDING"
	SubscriptionCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionExpired   SubscriptionStatus = "EXPIRED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPending, SubscriptionCancelled, SubscriptionExpired:
		return true
	}
	return false
}

type Subscription struct {
	ID                   int64              `db:"id" json:"id"`
	UserID               int64              `db:"user_id" json:"userId"`
	PackageID            int64              `db:"package_id" json:"packageId"`
	Status               SubscriptionStatus `db:"status" json:"status"`
	StartDate            time.Time          `db:"start_date" json:"startDate"`
	EndDate              *time.Time         `db:"end_date" json:"endDate,omitempty"`
	ClassesCompleted     int                `db:"classes_completed" json:"classesCompleted"`
	AutoRenew            bool               `db:"auto_renew" json:"autoRenew"`
	StripeSubscriptionID *string            `db:"stripe_subscription_id" json:"-"`
	CreatedAt            time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time          `db:"updated_at" json:"updatedAt"`
}

// SubscriptionWithPackage is an ACTIVE subscription joined with its package.
type SubscriptionWithPackage struct {
	Subscription
	Package Package `db:"package" json:"package"`
}
