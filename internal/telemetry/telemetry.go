// Package telemetry exposes Prometheus metrics for scoring runs.
package telemetry

import (
	"net/http"
	"time"

	"HealthSentinel/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "health_sentinel"

// Metrics holds the run collectors on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	RunDuration    prometheus.Histogram
	Runs           *prometheus.CounterVec
	Customers      *prometheus.CounterVec
	Alerts         *prometheus.CounterVec
	Suppressed     prometheus.Counter
	CoverageGaps   prometheus.Counter
	HealthScore    prometheus.Histogram
	LastRunSuccess prometheus.Gauge
	Portfolio      *prometheus.GaugeVec
	QueueLength    prometheus.Gauge
	RevenueAtRisk  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of scoring runs",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Scoring runs by outcome",
		}, []string{"outcome"}),
		Customers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "customers_total",
			Help:      "Customers processed by status",
		}, []string{"status"}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts emitted by type and severity",
		}, []string{"type", "severity"}),
		Suppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_suppressed_total",
			Help:      "Alerts dropped by the cooldown",
		}),
		CoverageGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coverage_gaps_total",
			Help:      "Alerts for which no action template matched",
		}),
		HealthScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Distribution of computed overall health scores",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
		Portfolio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "portfolio_customers",
			Help:      "Customers per risk label in the last run",
		}, []string{"label"}),
		QueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Open alerts queued by the last run",
		}),
		RevenueAtRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "revenue_at_risk",
			Help:      "MRR of customers with a high or critical risk alert in the last run",
		}),
	}
	m.registry.MustRegister(
		m.RunDuration, m.Runs, m.Customers, m.Alerts,
		m.Suppressed, m.CoverageGaps, m.HealthScore, m.LastRunSuccess,
		m.Portfolio, m.QueueLength, m.RevenueAtRisk,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(rep *model.RunReport, err error) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(rep.FinishedAt.Sub(rep.StartedAt).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Runs.WithLabelValues(outcome).Inc()
	if err == nil {
		m.LastRunSuccess.Set(float64(rep.FinishedAt.Unix()))
	}

	for _, r := range rep.Results {
		m.Customers.WithLabelValues(string(r.Status)).Inc()
		if r.Snapshot != nil && !r.Stale {
			m.HealthScore.Observe(r.Snapshot.Overall)
		}
		for _, a := range r.Alerts {
			m.Alerts.WithLabelValues(string(a.Type), string(a.Severity)).Inc()
		}
		m.Suppressed.Add(float64(r.Suppressed))
		m.CoverageGaps.Add(float64(len(r.CoverageGaps)))
	}

	if p := rep.Portfolio; p != nil {
		m.Portfolio.Reset()
		for label, n := range p.Labels {
			m.Portfolio.WithLabelValues(string(label)).Set(float64(n))
		}
		m.QueueLength.Set(float64(p.QueueLength))
		m.RevenueAtRisk.Set(p.RevenueAtRisk)
	}
}

// ObserveFailure records a run that could not start, e.g. the customer list failed.
func (m *Metrics) ObserveFailure(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
	m.Runs.WithLabelValues("error").Inc()
}
