package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/Spok95/learning-platform/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func TestCreateSession(t *testing.T) {
	svc := NewCheckoutService("sk_test_123", "https://app/success", "https://app/cancel")
	var got *stripe.CheckoutSessionParams
	svc.create = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.com/c/pay/cs_1"}, nil
	}

	url, err := svc.CreateSession(context.Background(),
		models.User{ID: 5, Email: "s@example.com"},
		models.Package{ID: 3, Title: "Quarter", PriceCents: 12000, Currency: "EUR", BillingFrequency: models.Quarterly},
	)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_1", url)

	require.NotNil(t, got)
	assert.Equal(t, "subscription", *got.Mode)
	assert.Equal(t, "5", got.Metadata["user_id"])
	assert.Equal(t, "3", got.Metadata["package_id"])
	assert.Equal(t, "3", got.SubscriptionData.Metadata["package_id"])
	require.Len(t, got.LineItems, 1)
	pd := got.LineItems[0].PriceData
	require.NotNil(t, pd)
	assert.Equal(t, "eur", *pd.Currency)
	assert.Equal(t, int64(12000), *pd.UnitAmount)
	assert.Equal(t, int64(3), *pd.Recurring.IntervalCount)
}

func TestCreateSession_UsesStripePrice(t *testing.T) {
	svc := NewCheckoutService("sk_test_123", "s", "c")
	price := "price_abc"
	var got *stripe.CheckoutSessionParams
	svc.create = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{URL: "u"}, nil
	}
	_, err := svc.CreateSession(context.Background(), models.User{ID: 1}, models.Package{ID: 2, StripePriceID: &price})
	require.NoError(t, err)
	assert.Equal(t, "price_abc", *got.LineItems[0].Price)
	assert.Nil(t, got.LineItems[0].PriceData)
}

func TestCreateSession_Errors(t *testing.T) {
	_, err := NewCheckoutService("", "s", "c").CreateSession(context.Background(), models.User{}, models.Package{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	svc := NewCheckoutService("sk", "s", "c")
	svc.create = func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return nil, errors.New("card_declined")
	}
	_, err = svc.CreateSession(context.Background(), models.User{ID: 1}, models.Package{ID: 1})
	assert.Error(t, err)

	svc.create = func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		return &stripe.CheckoutSession{}, nil
	}
	_, err = svc.CreateSession(context.Background(), models.User{ID: 1}, models.Package{ID: 1})
	assert.Error(t, err)
}
