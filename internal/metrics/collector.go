package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

type EventType string

const (
	EventAttemptCompleted  EventType = "attempt_completed"
	EventCallCompleted     EventType = "call_completed"
	EventRetryScheduled    EventType = "retry_scheduled"
	EventFallbackServed    EventType = "fallback_served"
	EventCallRejected      EventType = "call_rejected"
	EventBreakerTransition EventType = "breaker_transition"
)

// OutcomeOK labels successful attempts and calls. Failures use the failure
// kind name.
const OutcomeOK = "ok"

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Operation  string
	Outcome    string
	Duration   time.Duration
	StatusCode int
	Delay      time.Duration
	State      string
}

type Collector struct {
	eventCh    chan MetricEvent
	metrics    *Metrics
	prometheus *promExporter
	logger     *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:    make(chan MetricEvent, bufferSize),
		metrics:    NewMetrics(),
		prometheus: newPromExporter(),
		logger:     logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Emit(event MetricEvent) {
	if c == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// Run processes events until ctx is cancelled, then drains what is left in
// the buffer.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return nil
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventAttemptCompleted:
		c.metrics.RecordAttempt(event.Outcome, event.Duration, event.StatusCode)

	case EventCallCompleted:
		c.metrics.RecordCall(event.Operation, event.Outcome, event.Duration)

	case EventRetryScheduled:
		c.metrics.RecordRetry(event.Delay)

	case EventFallbackServed:
		c.metrics.RecordFallback()

	case EventCallRejected:
		c.metrics.RecordRejection()

	case EventBreakerTransition:
		c.metrics.RecordBreakerTransition(event.State, event.Timestamp)

	default:
		c.logger.Debug("Ignoring unknown metric event", slog.String("type", string(event.Type)))
		return
	}

	c.prometheus.observe(event)
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot(strategy string) Snapshot {
	return c.metrics.Snapshot(strategy)
}

// PrometheusHandler exposes the collector's own registry in the Prometheus
// text format.
func (c *Collector) PrometheusHandler() http.Handler {
	return c.prometheus.handler()
}
