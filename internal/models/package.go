package models

import "time"

type BillingFrequency string

const (
	Monthly    BillingFrequency = "MONTHLY"
	Quarterly  BillingFrequency = "QUARTERLY"
	HalfYearly BillingFrequency = "HALF_YEARLY"
	Yearly     BillingFrequency = "YEARLY"
)

// Months returns the length of one billing period. Unknown values count as one month.
func (f BillingFrequency) Months() int {
	switch f {
	case Quarterly:
		return 3
	case HalfYearly:
		return 6
	case Yearly:
		return 12
	default:
		return 1
	}
}

func (f BillingFrequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, HalfYearly, Yearly:
		return true
	}
	return false
}

// Package is admin-managed reference data. ClassesPerMonth is nil when the
// administrator left the allowance unset.
type Package struct {
	ID                   int64            `db:"id" json:"id"`
	Title                string           `db:"title" json:"title"`
	PriceCents           int64            `db:"price_cents" json:"priceCents"`
	Currency             string           `db:"currency" json:"currency"`
	BillingFrequency     BillingFrequency `db:"billing_frequency" json:"billingFrequency"`
	ClassDurationMinutes int              `db:"class_duration_minutes" json:"classDurationMinutes"`
	ClassesPerMonth      *int             `db:"classes_per_month" json:"classesPerMonth,omitempty"`
	StripePriceID        *string          `db:"stripe_price_id" json:"stripePriceId,omitempty"`
	CreatedAt            time.Time        `db:"created_at" json:"createdAt"`
}
