// Package payments talks to Stripe: it opens checkout sessions and applies webhook
// events to local subscriptions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Spok95/learning-platform/internal/models"
	"github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

var ErrNotConfigured = errors.New("payments are not configured")

type CheckoutService struct {
	secretKey  string
	successURL string
	cancelURL  string
	create     func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewCheckoutService(secretKey, successURL, cancelURL string) *CheckoutService {
	return &CheckoutService{
		secretKey:  strings.TrimSpace(secretKey),
		successURL: successURL,
		cancelURL:  cancelURL,
		create:     stripesession.New,
	}
}

// CreateSession opens a subscription-mode checkout for pkg and returns its URL.
// user_id and package_id travel in metadata so the webhook can activate the right row.
func (s *CheckoutService) CreateSession(ctx context.Context, user models.User, pkg models.Package) (string, error) {
	if s.secretKey == "" {
		return "", ErrNotConfigured
	}
	stripe.Key = s.secretKey

	meta := map[string]string{
		"user_id":    strconv.FormatInt(user.ID, 10),
		"package_id": strconv.FormatInt(pkg.ID, 10),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(s.successURL),
		CancelURL:         stripe.String(s.cancelURL),
		CustomerEmail:     stripe.String(user.Email),
		ClientReferenceID: stripe.String(meta["user_id"]),
		LineItems:         []*stripe.CheckoutSessionLineItemParams{lineItem(pkg)},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: meta,
		},
	}
	params.Context = ctx
	for k, v := range meta {
		params.AddMetadata(k, v)
	}

	sess, err := s.create(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if sess == nil || strings.TrimSpace(sess.URL) == "" {
		return "", fmt.Errorf("stripe returned empty checkout URL")
	}
	return sess.URL, nil
}

// lineItem uses the package's Stripe price when it has one, inline price data otherwise.
func lineItem(pkg models.Package) *stripe.CheckoutSessionLineItemParams {
	if pkg.StripePriceID != nil && *pkg.StripePriceID != "" {
		return &stripe.CheckoutSessionLineItemParams{
			Price:    pkg.StripePriceID,
			Quantity: stripe.Int64(1),
		}
	}
	currency := strings.ToLower(pkg.Currency)
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &stripe.CheckoutSessionLineItemParams{
		Quantity: stripe.Int64(1),
		PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
			Currency:   stripe.String(currency),
			UnitAmount: stripe.Int64(pkg.PriceCents),
			ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
				Name: stripe.String(pkg.Title),
			},
			Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
				Interval:      stripe.String(string(stripe.PriceRecurringIntervalMonth)),
				IntervalCount: stripe.Int64(int64(pkg.BillingFrequency.Months())),
			},
		},
	}
}
