package payments

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/subscriptions"
	"github.com/Spok95/learning-platform/internal/testutil/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingProcessor struct{ cancelled []string }

func (p *recordingProcessor) CancelSubscription(_ context.Context, id string) error {
	p.cancelled = append(p.cancelled, id)
	return nil
}

func checkoutEvent(f memstore.Fixture, stripeSubID string) string {
	return event("checkout.session.completed", fmt.Sprintf(
		`{"id":"cs_1","object":"checkout.session","subscription":%q,"metadata":{"user_id":"%d","package_id":"%d"}}`,
		stripeSubID, f.Student.ID, f.Package.ID))
}

func statusEvent(typ, stripeSubID, status string) string {
	return event(typ, fmt.Sprintf(`{"id":%q,"object":"subscription","status":%q}`, stripeSubID, status))
}

func subsByStatus(t *testing.T, st *memstore.Store, userID int64) map[models.SubscriptionStatus][]models.Subscription {
	t.Helper()
	all, err := st.ListSubscriptionsByUser(context.Background(), userID)
	require.NoError(t, err)
	out := map[models.SubscriptionStatus][]models.Subscription{}
	for _, s := range all {
		out[s.Status] = append(out[s.Status], s)
	}
	return out
}

func TestWebhook_CheckoutRedeliveryKeepsOneSubscription(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	f := st.SeedPair(nil, now.AddDate(0, -1, 0), memstore.TimePtr(now.AddDate(0, 0, 3)))
	svc := subscriptions.New(st, nil, nil, nil)
	h := NewWebhookHandler(secret, svc, nil)

	for i := 0; i < 2; i++ {
		w := serve(t, h, signedRequest(t, checkoutEvent(f, "sub_dup")))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	all, err := st.ListSubscriptionsByUser(context.Background(), f.Student.ID)
	require.NoError(t, err)
	require.Len(t, all, 2, "seeded row plus exactly one from checkout")
	byStatus := subsByStatus(t, st, f.Student.ID)
	require.Len(t, byStatus[models.SubscriptionActive], 1)
	active := byStatus[models.SubscriptionActive][0]
	require.NotNil(t, active.StripeSubscriptionID)
	assert.Equal(t, "sub_dup", *active.StripeSubscriptionID)
}

func TestWebhook_EventsReachManuallyRenewedSubscription(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	f := st.SeedPair(nil, now.AddDate(0, -2, 0), memstore.TimePtr(now.AddDate(0, -1, 0)))
	svc := subscriptions.New(st, nil, nil, nil)
	h := NewWebhookHandler(secret, svc, nil)

	require.Equal(t, http.StatusOK, serve(t, h, signedRequest(t, checkoutEvent(f, "sub_123"))).Code)
	cur, err := svc.Current(context.Background(), f.Student.ID)
	require.NoError(t, err)
	renewed, err := svc.RenewManual(context.Background(), f.Student.ID, cur.EndDate.AddDate(0, 0, -3))
	require.NoError(t, err)

	w := serve(t, h, signedRequest(t, statusEvent("customer.subscription.deleted", "sub_123", "canceled")))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := st.GetSubscription(context.Background(), renewed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionCancelled, got.Status)
}

func TestWebhook_ReactivationConflictIsAcked(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	f := st.SeedPair(nil, now.AddDate(0, -1, 0), memstore.TimePtr(now.AddDate(0, 0, 10)))
	stale := "sub_old"
	st.PutSubscription(&models.Subscription{
		UserID: f.Student.ID, PackageID: f.Package.ID, Status: models.SubscriptionPending,
		StartDate: now.AddDate(0, -3, 0), StripeSubscriptionID: &stale,
	})
	h := NewWebhookHandler(secret, subscriptions.New(st, nil, nil, nil), nil)

	w := serve(t, h, signedRequest(t, statusEvent("customer.subscription.updated", stale, "active")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	byStatus := subsByStatus(t, st, f.Student.ID)
	require.Len(t, byStatus[models.SubscriptionActive], 1)
	assert.Equal(t, f.Subscription.ID, byStatus[models.SubscriptionActive][0].ID)
	assert.Len(t, byStatus[models.SubscriptionPending], 1)
}

func TestWebhook_ActiveEventAfterLocalCancel(t *testing.T) {
	st := memstore.New()
	now := time.Now()
	f := st.SeedPair(nil, now.AddDate(0, -1, 0), memstore.TimePtr(now.AddDate(0, 0, 10)))
	proc := &recordingProcessor{}
	svc := subscriptions.New(st, nil, proc, nil)
	h := NewWebhookHandler(secret, svc, nil)

	require.Equal(t, http.StatusOK, serve(t, h, signedRequest(t, checkoutEvent(f, "sub_live"))).Code)
	require.NoError(t, svc.Cancel(context.Background(), f.Student.ID, now))
	assert.Equal(t, []string{"sub_live"}, proc.cancelled)

	w := serve(t, h, signedRequest(t, statusEvent("customer.subscription.updated", "sub_live", "active")))
	require.Equal(t, http.StatusOK, w.Code)

	_, err := svc.Current(context.Background(), f.Student.ID)
	assert.Error(t, err, "a cancelled subscription must not come back to ACTIVE")
	assert.Len(t, subsByStatus(t, st, f.Student.ID)[models.SubscriptionCancelled], 1)
}
