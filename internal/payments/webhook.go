package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Spok95/learning-platform/internal/apperr"
	"github.com/Spok95/learning-platform/internal/logging"
	"github.com/Spok95/learning-platform/internal/metrics"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/Spok95/learning-platform/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// Subscriptions is what the webhook needs from the subscription service.
type Subscriptions interface {
	Activate(ctx context.Context, userID, packageID int64, stripeSubID string, now time.Time) (*models.Subscription, error)
	UpdateStatusByStripeID(ctx context.Context, stripeSubID string, status models.SubscriptionStatus) error
}

type WebhookHandler struct {
	secret string
	subs   Subscriptions
	log    *zap.Logger
	now    func() time.Time
}

func NewWebhookHandler(secret string, subs Subscriptions, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{secret: secret, subs: subs, log: logging.OrNop(log), now: time.Now}
}

// Handle verifies the Stripe-Signature header and dispatches on the event type.
// Unhandled types are acknowledged so Stripe stops retrying them.
func (h *WebhookHandler) Handle(c *gin.Context) {
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookEvents.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
	}()

	if strings.TrimSpace(h.secret) == "" {
		status = http.StatusServiceUnavailable
		c.JSON(status, gin.H{"error": "webhook secret not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "failed to read request body"})
		return
	}
	sig := c.GetHeader("Stripe-Signature")
	if strings.TrimSpace(sig) == "" {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "missing Stripe signature"})
		return
	}
	event, err := webhook.ConstructEventWithOptions(payload, sig, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		status = http.StatusBadRequest
		c.JSON(status, gin.H{"error": "invalid Stripe signature"})
		return
	}
	eventType = string(event.Type)

	if err := h.dispatch(c.Request.Context(), &event); err != nil {
		h.log.Error("stripe webhook processing failed",
			zap.String("event_id", event.ID),
			zap.String("type", eventType),
			zap.Error(err),
		)
		observability.CaptureOpErr(err, "stripe_webhook", 0)
		status = http.StatusInternalServerError
		c.JSON(status, gin.H{"error": "processing failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

type checkoutSession struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (h *WebhookHandler) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var sess checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout.session: %w", err)
		}
		userID, err1 := strconv.ParseInt(sess.Metadata["user_id"], 10, 64)
		packageID, err2 := strconv.ParseInt(sess.Metadata["package_id"], 10, 64)
		if err1 != nil || err2 != nil {
			h.log.Warn("checkout session without user/package metadata", zap.String("session_id", sess.ID))
			return nil
		}
		_, err := h.subs.Activate(ctx, userID, packageID, sess.Subscription, h.now())
		return err

	case "customer.subscription.updated":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		st, ok := MapStripeStatus(sub.Status)
		if !ok {
			h.log.Info("stripe subscription status ignored", zap.String("status", sub.Status))
			return nil
		}
		return h.update(ctx, sub.ID, st)

	case "customer.subscription.deleted":
		var sub subscriptionObject
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return h.update(ctx, sub.ID, models.SubscriptionCancelled)

	case "invoice.payment_failed":
		var inv invoiceObject
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		subID := inv.Parent.SubscriptionDetails.Subscription
		if subID == "" {
			subID = inv.Subscription
		}
		if subID == "" {
			return nil
		}
		return h.update(ctx, subID, models.SubscriptionPending)

	default:
		h.log.Debug("stripe webhook ignored (unhandled type)",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID),
		)
		return nil
	}
}

// update acknowledges events no retry could apply: an unknown or already final
// subscription, and a reactivation that would clash with the user's current ACTIVE row.
func (h *WebhookHandler) update(ctx context.Context, stripeSubID string, st models.SubscriptionStatus) error {
	err := h.subs.UpdateStatusByStripeID(ctx, stripeSubID, st)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		h.log.Warn("stripe subscription unknown locally or already final",
			zap.String("stripe_subscription_id", stripeSubID),
			zap.String("status", string(st)),
		)
		return nil
	case errors.Is(err, apperr.ErrConflict):
		h.log.Warn("stripe status change conflicts with the user's active subscription",
			zap.String("stripe_subscription_id", stripeSubID),
			zap.String("status", string(st)),
			zap.Error(err),
		)
		return nil
	}
	return err
}

// MapStripeStatus translates a Stripe subscription status to ours.
func MapStripeStatus(s string) (models.SubscriptionStatus, bool) {
	switch s {
	case "active", "trialing":
		return models.SubscriptionActive, true
	case "past_due", "incomplete", "unpaid":
		return models.SubscriptionPending, true
	case "canceled":
		return models.SubscriptionCancelled, true
	case "incomplete_expired":
		return models.SubscriptionExpired, true
	}
	return "", false
}
