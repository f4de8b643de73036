package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_admissions_total",
		Help: "Admission decisions by outcome and reason.",
	}, []string{"outcome", "reason"})

	GenerationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_generations_total",
		Help: "Completed generation attempts by terminal status.",
	}, []string{"status"})

	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "persona_generation_duration_seconds",
		Help:    "Wall time of the external generation call.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})

	CreditsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persona_credits_granted_half_units_total",
		Help: "Paid half-units granted through reconciliation.",
	})

	CreditsConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persona_credits_consumed_half_units_total",
		Help: "Paid half-units consumed by admissions.",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persona_webhook_events_total",
		Help: "Inbound processor webhook events by type and outcome.",
	}, []string{"event_type", "outcome"})
)
