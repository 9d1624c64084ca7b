// Package metrics provides real-time metrics collection for the orders fetcher.
//
// It uses a channel-based event pipeline to asynchronously collect metrics about:
//   - Upstream attempts by outcome and HTTP status code
//   - Fetch operations by name and outcome
//   - Latencies with percentile calculations (P50, P95, P99)
//   - Retries scheduled and fallbacks served
//   - Circuit breaker transitions and rejections
//
// The collector runs in a dedicated goroutine and processes events without blocking
// the request path. Events are sent via buffered channels with non-blocking semantics
// to prevent performance degradation under load.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	go collector.Run(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventAttemptCompleted,
//		Outcome:    metrics.OutcomeOK,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("layered")
//
// Every event also feeds a Prometheus registry owned by the collector, served
// by PrometheusHandler.
package metrics
