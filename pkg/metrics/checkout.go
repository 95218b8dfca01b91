package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "corporatepranks"

// Checkout records payment session and outcome counters for the checkout flows.
type Checkout struct {
	sessions      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	providerCalls *prometheus.HistogramVec
}

// NewCheckout registers the checkout metrics on reg. A nil registerer yields a no-op recorder.
func NewCheckout(reg prometheus.Registerer) *Checkout {
	if reg == nil {
		return &Checkout{}
	}
	sessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_sessions_initiated_total",
		Help:      "Payment sessions minted with a provider.",
	}, []string{"provider"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_outcomes_total",
		Help:      "Terminal payment outcomes per checkout flow.",
	}, []string{"flow", "outcome"})
	writeFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_order_write_failures_total",
		Help:      "Orders that could not be written after a successful payment.",
	}, []string{"kind"})
	providerCalls := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "checkout_provider_call_seconds",
		Help:      "Latency of payment provider calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "op"})
	reg.MustRegister(sessions, outcomes, writeFailures, providerCalls)
	return &Checkout{
		sessions:      sessions,
		outcomes:      outcomes,
		writeFailures: writeFailures,
		providerCalls: providerCalls,
	}
}

func (c *Checkout) SessionInitiated(provider string) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.WithLabelValues(jobLabel(provider)).Inc()
}

func (c *Checkout) Outcome(flow, outcome string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(jobLabel(flow), jobLabel(outcome)).Inc()
}

func (c *Checkout) OrderWriteFailed(kind string) {
	if c == nil || c.writeFailures == nil {
		return
	}
	c.writeFailures.WithLabelValues(jobLabel(kind)).Inc()
}

// ObserveProviderCall records how long a provider operation took.
func (c *Checkout) ObserveProviderCall(provider, op string, d time.Duration) {
	if c == nil || c.providerCalls == nil {
		return
	}
	c.providerCalls.WithLabelValues(jobLabel(provider), jobLabel(op)).Observe(d.Seconds())
}
