package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/resilient-orders/internal/handler"
	"github.com/angeloszaimis/resilient-orders/internal/metrics"
)

func setupRouter(log *slog.Logger, orders http.Handler, breakers handler.BreakerSource, latency handler.LatencySource, metricsCollector *metrics.Collector, strategy string) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/orders", orders)
	mux.HandleFunc("/breaker", handler.BreakerHandler(breakers, latency))
	mux.HandleFunc("/health", handler.HealthHandler())
	mux.HandleFunc("/metrics", metricsCollector.Handler(strategy))
	mux.Handle("/metrics/prometheus", metricsCollector.PrometheusHandler())

	return handler.Logging(log, mux)
}
