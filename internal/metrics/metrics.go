package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lowc1012/tiered-rate-limiter/pkg/ratelimiter"
)

const namespace = "ratelimit"

// Outcome labels of the decisions counter.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// Metrics records rate limiting decisions. It implements ratelimiter.Observer.
type Metrics struct {
	registry    *prometheus.Registry
	decisions   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	storeErrors prometheus.Counter
}

var _ ratelimiter.Observer = &Metrics{}

// New registers the rate limiting collectors, plus the process and Go runtime
// collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total rate limiting decisions by tier and outcome.",
		}, []string{"tier", "outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Total rejected calls by tier and offending window.",
		}, []string{"tier", "window"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Total calls that failed because the store was unavailable.",
		}),
	}
	m.registry.MustRegister(
		m.decisions,
		m.rejections,
		m.storeErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Observe(tier string, err error) {
	if qe, ok := ratelimiter.IsQuotaExceeded(err); ok {
		m.decisions.WithLabelValues(tier, OutcomeRejected).Inc()
		m.rejections.WithLabelValues(tier, qe.Window.String()).Inc()
		return
	}

	switch {
	case err == nil:
		m.decisions.WithLabelValues(tier, OutcomeAllowed).Inc()
	case errors.Is(err, ratelimiter.ErrUnknownTier), errors.Is(err, ratelimiter.ErrEmptyKey):
		m.decisions.WithLabelValues(tier, OutcomeInvalid).Inc()
	default:
		if errors.Is(err, ratelimiter.ErrStoreUnavailable) {
			m.storeErrors.Inc()
		}
		m.decisions.WithLabelValues(tier, OutcomeError).Inc()
	}
}

// Registry exposes the underlying registry for additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
