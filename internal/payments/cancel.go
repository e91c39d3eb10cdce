package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
	stripesub "github.com/stripe/stripe-go/v82/subscription"
)

// SubscriptionCanceller ends a Stripe subscription immediately so billing stops.
type SubscriptionCanceller struct {
	secretKey string
	cancel    func(id string, params *stripe.SubscriptionCancelParams) (*stripe.Subscription, error)
}

func NewSubscriptionCanceller(secretKey string) *SubscriptionCanceller {
	return &SubscriptionCanceller{secretKey: strings.TrimSpace(secretKey), cancel: stripesub.Cancel}
}

// CancelSubscription cancels stripeSubID. A subscription Stripe no longer knows counts as done.
func (c *SubscriptionCanceller) CancelSubscription(ctx context.Context, stripeSubID string) error {
	if c.secretKey == "" {
		return ErrNotConfigured
	}
	stripe.Key = c.secretKey

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	sub, err := c.cancel(stripeSubID, params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing {
			return nil
		}
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	if sub != nil && sub.Status != stripe.SubscriptionStatusCanceled {
		return fmt.Errorf("stripe subscription %s still %s after cancel", stripeSubID, sub.Status)
	}
	return nil
}
