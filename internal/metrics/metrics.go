package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "storefront"

// Metrics groups the collectors the cart and checkout paths record into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cartMutations  *prometheus.CounterVec
	orderCommits   *prometheus.CounterVec
	commitDuration prometheus.Histogram
	quotes         *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cartMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cart", Name: "mutations_total",
			Help: "Cart mutations by operation and outcome.",
		}, []string{"op", "outcome"}),
		orderCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "order", Name: "commits_total",
			Help: "Order commit attempts by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "order", Name: "commit_duration_seconds",
			Help:    "Order commit latency.",
			Buckets: prometheus.DefBuckets,
		}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "shipping", Name: "quotes_total",
			Help: "Shipping quote requests by outcome.",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.cartMutations, m.orderCommits, m.commitDuration, m.quotes, m.httpRequests, m.httpDuration)
	}
	return m
}

func (m *Metrics) CartMutation(op, outcome string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) OrderCommit(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.orderCommits.WithLabelValues(outcome).Inc()
	m.commitDuration.Observe(seconds)
}

func (m *Metrics) Quote(outcome string) {
	if m == nil {
		return
	}
	m.quotes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// CartMutationsCounter exposes the underlying vector for tests.
func (m *Metrics) CartMutationsCounter() *prometheus.CounterVec {
	return m.cartMutations
}
