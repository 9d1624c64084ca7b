package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type promExporter struct {
	registry *prometheus.Registry

	attempts       *prometheus.CounterVec
	attemptLatency prometheus.Histogram
	calls          *prometheus.CounterVec
	callLatency    *prometheus.HistogramVec
	retries        prometheus.Counter
	fallbacks      prometheus.Counter
	rejections     prometheus.Counter
	transitions    *prometheus.CounterVec
	breakerState   prometheus.Gauge
}

func newPromExporter() *promExporter {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &promExporter{
		registry: registry,

		// attempts tracks every upstream request by outcome and status code
		attempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_upstream_attempts_total",
				Help: "Total number of requests sent to the orders upstream",
			},
			[]string{"outcome", "status"},
		),

		attemptLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "orders_upstream_attempt_duration_seconds",
				Help:    "Orders upstream request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		calls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_fetch_calls_total",
				Help: "Total number of fetch operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		callLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orders_fetch_call_duration_seconds",
				Help:    "Fetch operation latency in seconds, including retries and waits",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		retries: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_fetch_retries_total",
			Help: "Total number of retries scheduled after transient failures",
		}),

		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_fetch_fallbacks_total",
			Help: "Total number of calls answered with fallback orders",
		}),

		rejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "orders_breaker_rejections_total",
			Help: "Total number of calls rejected by the circuit breaker",
		}),

		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_breaker_transitions_total",
				Help: "Total number of circuit breaker transitions by target state",
			},
			[]string{"state"},
		),

		// breakerState is 0 when closed, 1 when open and 2 when half-open
		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orders_breaker_state",
			Help: "Current circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
	}
}

func (p *promExporter) observe(event MetricEvent) {
	switch event.Type {
	case EventAttemptCompleted:
		status := "none"
		if event.StatusCode != 0 {
			status = strconv.Itoa(event.StatusCode)
		}
		p.attempts.WithLabelValues(event.Outcome, status).Inc()
		p.attemptLatency.Observe(event.Duration.Seconds())

	case EventCallCompleted:
		p.calls.WithLabelValues(event.Operation, event.Outcome).Inc()
		p.callLatency.WithLabelValues(event.Operation).Observe(event.Duration.Seconds())

	case EventRetryScheduled:
		p.retries.Inc()

	case EventFallbackServed:
		p.fallbacks.Inc()

	case EventCallRejected:
		p.rejections.Inc()

	case EventBreakerTransition:
		p.transitions.WithLabelValues(event.State).Inc()
		p.breakerState.Set(stateValue(event.State))
	}
}

func (p *promExporter) handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

func stateValue(state string) float64 {
	switch state {
	case "OPEN":
		return 1
	case "HALF-OPEN":
		return 2
	default:
		return 0
	}
}
