package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/strategy"
)

// StrategyHeader names the strategy that produced a response.
const StrategyHeader = "X-Fetch-Strategy"

type OrdersHandler struct {
	logger   *slog.Logger
	strategy strategy.Strategy
}

func NewOrdersHandler(logger *slog.Logger, strat strategy.Strategy) *OrdersHandler {
	return &OrdersHandler{
		logger:   logger.With(slog.String("component", "orders_handler")),
		strategy: strat,
	}
}

func (h *OrdersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set(StrategyHeader, h.strategy.Name())

	orders, err := h.strategy.Fetch(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *failure.Error

	switch {
	case r.Context().Err() != nil:
		// Client went away, nobody to answer.
		return
	case errors.As(err, &fe) && fe.Kind == failure.KindCircuitOpen:
		w.Header().Set("Retry-After", retryAfterSeconds(fe.RetryAfter))
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, failure.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	case failure.IsClassified(err):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		h.logger.Error("Unexpected fetch error", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.logger.Warn("Orders fetch failed",
		slog.String("strategy", h.strategy.Name()),
		slog.String("kind", failure.KindOf(err).String()),
		slog.Any("err", err))
}

func retryAfterSeconds(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
