package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_job_runs_total",
			Help: "Total background job runs",
		},
		[]string{"job"},
	)

	jobErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_job_errors_total",
			Help: "Total background job errors",
		},
		[]string{"job"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_job_duration_seconds",
			Help:    "Background job duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)

	// channel: email|telegram|lookup; outcome: queued|no_chat|failed
	classReminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_class_reminders_total",
			Help: "Class reminder deliveries by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(jobRuns, jobErrors, jobDuration, classReminders)
}
