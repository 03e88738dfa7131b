// Package metrics exports Prometheus collectors for the cart recovery
// automation runner. Every method is safe on a nil *Automation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Automation records what each automation run did.
type Automation struct {
	runs         *prometheus.CounterVec
	attempts     *prometheus.CounterVec
	cartFailures prometheus.Counter
	duration     prometheus.Histogram
}

// NewAutomation registers the automation metrics on reg. A nil reg yields a
// collector that records nothing.
func NewAutomation(reg prometheus.Registerer) *Automation {
	if reg == nil {
		return &Automation{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoppipe_automation_runs_total",
		Help: "Automation runs by outcome.",
	}, []string{"outcome"})
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shoppipe_recovery_attempts_sent_total",
		Help: "Recovery attempts recorded by the automation runner, by stage.",
	}, []string{"stage"})
	cartFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shoppipe_automation_cart_failures_total",
		Help: "Carts whose processing failed during an automation run.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shoppipe_automation_run_duration_seconds",
		Help:    "Duration of automation runs in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(runs, attempts, cartFailures, duration)
	return &Automation{
		runs:         runs,
		attempts:     attempts,
		cartFailures: cartFailures,
		duration:     duration,
	}
}

// ObserveRun records one finished run.
func (a *Automation) ObserveRun(outcome string, d time.Duration) {
	if a == nil || a.runs == nil {
		return
	}
	a.runs.WithLabelValues(normalizeLabel(outcome)).Inc()
	a.duration.Observe(d.Seconds())
}

// IncAttempt counts one attempt recorded at stage.
func (a *Automation) IncAttempt(stage string) {
	if a == nil || a.attempts == nil {
		return
	}
	a.attempts.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncCartFailure counts one cart that could not be processed.
func (a *Automation) IncCartFailure() {
	if a == nil || a.cartFailures == nil {
		return
	}
	a.cartFailures.Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
