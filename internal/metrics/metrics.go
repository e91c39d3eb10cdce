package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "http_requests_total", Help: "Processed HTTP requests",
	}, []string{"route", "method", "status"})
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "platform", Name: "http_request_duration_seconds", Help: "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	HandlerErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "handler_errors_total", Help: "Requests answered with 5xx",
	})

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "class_sessions_started_total", Help: "Classes started",
	})
	SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "class_sessions_completed_total", Help: "Classes completed",
	})
	EntitlementDenied = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "platform", Name: "entitlement_denied_total", Help: "Entitlement checks with no remaining classes",
	})
	Renewals = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "subscription_renewals_total", Help: "Manual renewal attempts by outcome",
	}, []string{"outcome"})
	Activations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "subscription_activations_total", Help: "Checkout activations by outcome",
	}, []string{"outcome"})
	Cancellations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "subscription_cancellations_total", Help: "User cancellations by processor outcome",
	}, []string{"processor"})
	WebhookEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "payment_webhook_events_total", Help: "Payment webhook events by type and status",
	}, []string{"type", "status"})
	EmailsSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "platform", Name: "emails_total", Help: "Transactional emails by template and outcome",
	}, []string{"template", "outcome"})
	DBPing = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "platform", Name: "db_ping_seconds", Help: "DB ping latency",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequests, HTTPDuration, HandlerErrors,
		SessionsStarted, SessionsCompleted, EntitlementDenied,
		Renewals, Activations, Cancellations, WebhookEvents, EmailsSent, DBPing,
	)
}

func Handler() http.Handler { return promhttp.Handler() }

func ObserveDBPing(d time.Duration) { DBPing.Observe(d.Seconds()) }
