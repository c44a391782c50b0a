package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the domains module: lifecycle counters
// and durations of the externally-bound paths (DNS checks, hosting binds).
type Metrics struct {
	DomainsAdded    prometheus.Counter
	DomainsDeleted  prometheus.Counter
	VerifyAttempts  *prometheus.CounterVec
	DeployAttempts  *prometheus.CounterVec
	VerifyDuration  prometheus.Histogram
	DeployDuration  prometheus.Histogram
	OrdersCompleted prometheus.Counter
	OrdersFailed    prometheus.Counter
}

// New registers and returns the domains module metrics.
func New() *Metrics {
	return &Metrics{
		DomainsAdded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "plinth_domains_added_total",
			Help: "Total number of domains added to the registry",
		}),
		DomainsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "plinth_domains_deleted_total",
			Help: "Total number of domains deleted from the registry",
		}),
		VerifyAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "plinth_domain_verify_attempts_total",
			Help: "DNS verification attempts by outcome",
		}, []string{"outcome"}),
		DeployAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "plinth_domain_deploy_attempts_total",
			Help: "Hosting deploy attempts by outcome",
		}, []string{"outcome"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "plinth_domain_verify_duration_seconds",
			Help:    "Duration of DNS verification passes",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DeployDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "plinth_domain_deploy_duration_seconds",
			Help:    "Duration of hosting bind operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		OrdersCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "plinth_domain_orders_completed_total",
			Help: "Total number of purchase orders that completed",
		}),
		OrdersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "plinth_domain_orders_failed_total",
			Help: "Total number of purchase orders that failed",
		}),
	}
}

// ObserveVerify records one verification attempt.
func (m *Metrics) ObserveVerify(start time.Time, verified bool) {
	m.VerifyDuration.Observe(time.Since(start).Seconds())
	outcome := "unverified"
	if verified {
		outcome = "verified"
	}
	m.VerifyAttempts.WithLabelValues(outcome).Inc()
}

// ObserveDeploy records one deploy attempt.
func (m *Metrics) ObserveDeploy(start time.Time, success bool) {
	m.DeployDuration.Observe(time.Since(start).Seconds())
	outcome := "failed"
	if success {
		outcome = "success"
	}
	m.DeployAttempts.WithLabelValues(outcome).Inc()
}
