package handler

import (
	"net/http"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
)

type BreakerSource interface {
	BreakerSnapshot() (circuitbreaker.Snapshot, bool)
}

type LatencySource interface {
	EWMATime() time.Duration
}

type BreakerStatus struct {
	Enabled  bool                     `json:"enabled"`
	Breaker  *circuitbreaker.Snapshot `json:"breaker,omitempty"`
	Upstream UpstreamStatus           `json:"upstream"`
}

type UpstreamStatus struct {
	EWMAResponseTime string `json:"ewma_response_time"`
}

// BreakerHandler reports the circuit breaker snapshot together with the
// upstream's smoothed response time. Enabled stays false until a
// circuit-breaker call created the breaker.
func BreakerHandler(breakers BreakerSource, latency LatencySource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := BreakerStatus{
			Upstream: UpstreamStatus{EWMAResponseTime: latency.EWMATime().String()},
		}
		if snap, ok := breakers.BreakerSnapshot(); ok {
			status.Enabled = true
			status.Breaker = &snap
		}

		writeJSON(w, http.StatusOK, status)
	}
}

// HealthHandler reports liveness of the gateway itself, not the upstream.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
