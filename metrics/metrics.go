// Package metrics exposes Prometheus collectors for scrape runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCached  = "cached"
)

// Metrics holds the scrape collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	scrapes  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.SummaryVec
	products *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// New creates the collectors on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scrapes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_scrapes_total",
				Help: "Scrape runs by detected platform and outcome.",
			},
			[]string{"platform", "outcome"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_scrape_failures_total",
				Help: "Failed scrape runs by reason.",
			},
			[]string{"reason"},
		),
		duration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       "storefront_scrape_duration_seconds",
				Help:       "Duration of scrape runs.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"platform"},
		),
		products: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_products_scraped_total",
				Help: "Products returned by successful scrapes.",
			},
			[]string{"platform"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_scrapes_in_flight",
			Help: "Scrape runs currently executing.",
		}),
	}

	m.registry.MustRegister(
		m.scrapes,
		m.failures,
		m.duration,
		m.products,
		m.inFlight,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Started marks a run as in flight. Call the returned func when it ends.
func (m *Metrics) Started() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

// ObserveSuccess records a completed run.
func (m *Metrics) ObserveSuccess(platform string, productCount int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(platform, OutcomeSuccess).Inc()
	m.duration.WithLabelValues(platform).Observe(elapsed.Seconds())
	m.products.WithLabelValues(platform).Add(float64(productCount))
}

// ObserveCached records a run answered from the cache.
func (m *Metrics) ObserveCached(platform string) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues(platform, OutcomeCached).Inc()
}

// ObserveFailure records a failed run.
func (m *Metrics) ObserveFailure(reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.scrapes.WithLabelValues("", OutcomeFailure).Inc()
	m.failures.WithLabelValues(reason).Inc()
	m.duration.WithLabelValues("").Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
