package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_login_attempts_total",
			Help: "Total number of admin login attempts by outcome",
		},
		[]string{"outcome"},
	)

	CSRFValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_csrf_validations_total",
			Help: "Total number of CSRF token redemptions by result",
		},
		[]string{"result"},
	)

	SessionsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formdesk_sessions_created_total",
			Help: "Total number of admin sessions created",
		},
	)

	GuardDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_guard_decisions_total",
			Help: "Total number of admin route guard decisions by result",
		},
		[]string{"result"},
	)

	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_store_errors_total",
			Help: "Total number of key-value store failures",
		},
		[]string{"driver", "op"},
	)

	SubmissionsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formdesk_submissions_received_total",
			Help: "Total number of contact submissions stored by source",
		},
		[]string{"source"},
	)

	SubmissionsThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "formdesk_submissions_throttled_total",
			Help: "Total number of public submissions rejected by the per-IP rate limit",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formdesk_http_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Label values shared by the auth and api packages.
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeRateLimited = "rate_limited"
	OutcomeInvalid     = "invalid"

	ResultValid   = "valid"
	ResultInvalid = "invalid"
	ResultAllowed = "allowed"
	ResultDenied  = "denied"
	ResultError   = "error"
)
