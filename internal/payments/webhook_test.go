package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
)

const secret = "whsec_test_secret"

func init() { gin.SetMode(gin.TestMode) }

type activation struct {
	userID, packageID int64
	stripeSubID       string
}

type statusUpdate struct {
	stripeSubID string
	status      models.SubscriptionStatus
}

type fakeSubs struct {
	activations []activation
	updates     []statusUpdate
	updateErr   error
}

func (f *fakeSubs) Activate(_ context.Context, userID, packageID int64, stripeSubID string, _ time.Time) (*models.Subscription, error) {
	f.activations = append(f.activations, activation{userID, packageID, stripeSubID})
	return &models.Subscription{ID: 1, UserID: userID, PackageID: packageID}, nil
}

func (f *fakeSubs) UpdateStatusByStripeID(_ context.Context, stripeSubID string, status models.SubscriptionStatus) error {
	f.updates = append(f.updates, statusUpdate{stripeSubID, status})
	return f.updateErr
}

func serve(t *testing.T, h *WebhookHandler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	r.POST("/api/webhooks/stripe", h.Handle)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func event(typ, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":%s}}`, typ, object)
}

func TestWebhook_CheckoutCompletedActivates(t *testing.T) {
	subs := &fakeSubs{}
	h := NewWebhookHandler(secret, subs, nil)

	w := serve(t, h, signedRequest(t, event("checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","subscription":"sub_9","metadata":{"user_id":"5","package_id":"3"}}`)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []activation{{5, 3, "sub_9"}}, subs.activations)
}

func TestWebhook_CheckoutWithoutMetadataIsAcked(t *testing.T) {
	subs := &fakeSubs{}
	w := serve(t, NewWebhookHandler(secret, subs, nil), signedRequest(t, event("checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, subs.activations)
}

func TestWebhook_StatusEvents(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []statusUpdate
	}{
		{"updated_active", event("customer.subscription.updated", `{"id":"sub_1","object":"subscription","status":"active"}`),
			[]statusUpdate{{"sub_1", models.SubscriptionActive}}},
		{"updated_past_due", event("customer.subscription.updated", `{"id":"sub_1","object":"subscription","status":"past_due"}`),
			[]statusUpdate{{"sub_1", models.SubscriptionPending}}},
		{"updated_canceled", event("customer.subscription.updated", `{"id":"sub_1","object":"subscription","status":"canceled"}`),
			[]statusUpdate{{"sub_1", models.SubscriptionCancelled}}},
		{"updated_unknown_status", event("customer.subscription.updated", `{"id":"sub_1","object":"subscription","status":"paused"}`),
			nil},
		{"deleted", event("customer.subscription.deleted", `{"id":"sub_2","object":"subscription","status":"canceled"}`),
			[]statusUpdate{{"sub_2", models.SubscriptionCancelled}}},
		{"invoice_failed", event("invoice.payment_failed", `{"id":"in_1","object":"invoice","parent":{"subscription_details":{"subscription":"sub_3"}}}`),
			[]statusUpdate{{"sub_3", models.SubscriptionPending}}},
		{"ignored_type", event("customer.created", `{"id":"cus_1","object":"customer"}`),
			nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			subs := &fakeSubs{}
			w := serve(t, NewWebhookHandler(secret, subs, nil), signedRequest(t, c.body))
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, c.want, subs.updates)
		})
	}
}

func TestWebhook_UnknownSubscriptionIsAcked(t *testing.T) {
	subs := &fakeSubs{updateErr: fmt.Errorf("subscription sub_x: %w", apperr.ErrNotFound)}
	w := serve(t, NewWebhookHandler(secret, subs, nil), signedRequest(t,
		event("customer.subscription.deleted", `{"id":"sub_x","object":"subscription"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_StoreFailureIs500(t *testing.T) {
	subs := &fakeSubs{updateErr: errors.New("connection refused")}
	w := serve(t, NewWebhookHandler(secret, subs, nil), signedRequest(t,
		event("customer.subscription.deleted", `{"id":"sub_x","object":"subscription"}`)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func TestWebhook_RejectsBadRequests(t *testing.T) {
	subs := &fakeSubs{}
	h := NewWebhookHandler(secret, subs, nil)
	body := event("customer.subscription.deleted", `{"id":"sub_1","object":"subscription"}`)

	t.Run("missing_signature", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader([]byte(body)))
		assert.Equal(t, http.StatusBadRequest, serve(t, h, req).Code)
	})
	t.Run("wrong_secret", func(t *testing.T) {
		req := signedRequest(t, body)
		w := serve(t, NewWebhookHandler("whsec_other", subs, nil), req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
	t.Run("not_configured", func(t *testing.T) {
		w := serve(t, NewWebhookHandler("", subs, nil), signedRequest(t, body))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
	t.Run("too_large", func(t *testing.T) {
		big := bytes.Repeat([]byte("a"), webhookBodyLimit+1)
		req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", bytes.NewReader(big))
		req.Header.Set("Stripe-Signature", "t=1,v1=abc")
		assert.Equal(t, http.StatusBadRequest, serve(t, h, req).Code)
	})
	assert.Empty(t, subs.updates)
}

func TestMapStripeStatus(t *testing.T) {
	st, ok := MapStripeStatus("incomplete")
	assert.True(t, ok)
	assert.Equal(t, models.SubscriptionPending, st)
	_, ok = MapStripeStatus("paused")
	assert.False(t, ok)
}
