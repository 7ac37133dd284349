package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the billing pipeline.
type Metrics struct {
	// Reconciliation
	ReconciliationsTotal *prometheus.CounterVec
	ReconcileDuration    prometheus.Histogram

	// Trigger adapters
	WebhookEventsTotal  *prometheus.CounterVec
	CheckoutVerifyTotal *prometheus.CounterVec

	// Sweep
	SweepRunsTotal      prometheus.Counter
	SweepCustomerErrors prometheus.Counter
	SweepLastSuccess    prometheus.Gauge

	// Proration
	ProrationPreviewsTotal *prometheus.CounterVec

	// Entitlements
	LimitChecksTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return &Metrics{
		ReconciliationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_reconciliations_total",
				Help: "Subscription reconciliations by trigger and outcome",
			},
			[]string{"trigger", "outcome"},
		),
		ReconcileDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "billing_reconcile_duration_seconds",
				Help:    "Latency of a single snapshot reconciliation",
				Buckets: prometheus.DefBuckets,
			},
		),
		WebhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Provider webhook events by type",
			},
			[]string{"type"},
		),
		CheckoutVerifyTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_checkout_verifications_total",
				Help: "Post-checkout verification calls by outcome",
			},
			[]string{"outcome"},
		),
		SweepRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_sweep_runs_total",
				Help: "Reconciliation sweep executions",
			},
		),
		SweepCustomerErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_sweep_customer_errors_total",
				Help: "Per-customer failures collected during sweeps",
			},
		),
		SweepLastSuccess: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "billing_sweep_last_success_timestamp_seconds",
				Help: "Unix time of the last fully attempted sweep",
			},
		),
		ProrationPreviewsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_proration_previews_total",
				Help: "Proration preview requests by outcome",
			},
			[]string{"outcome"},
		),
		LimitChecksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_limit_checks_total",
				Help: "Feature limit checks by feature and result",
			},
			[]string{"feature", "allowed"},
		),
	}
}
