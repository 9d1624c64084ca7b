package ordersstub

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/order"
)

const OrdersPath = "/orders"

var itemNames = []string{"burger", "pizza", "sushi", "poke", ""}

// SomeValidOrders returns n deterministic orders with one item each.
func SomeValidOrders(n int) []order.Order {
	orders := make([]order.Order, 0, n)
	for i := 1; i <= n; i++ {
		orders = append(orders, order.Order{
			ID:     int64(i),
			UserID: int64(100 + i),
			Items: []order.Item{{
				ID:       int64(i),
				Name:     itemNames[(i-1)%len(itemNames)],
				Quantity: 1,
			}},
		})
	}
	return orders
}

// Stub is a scripted orders endpoint. The first Failures requests are
// answered with FailureStatus, every later one with the configured orders.
type Stub struct {
	orders        []order.Order
	body          []byte
	failures      int64
	failureStatus int
	latency       time.Duration
	logger        *slog.Logger
	hits          atomic.Int64
}

type Option func(*Stub)

func WithOrders(n int) Option {
	return func(s *Stub) {
		s.orders = SomeValidOrders(n)
	}
}

// WithFailures makes the first n requests fail with status.
func WithFailures(n int, status int) Option {
	return func(s *Stub) {
		s.failures = int64(n)
		s.failureStatus = status
	}
}

// WithPermanentFailure makes every request fail with status.
func WithPermanentFailure(status int) Option {
	return WithFailures(math.MaxInt32, status)
}

// WithLatency delays every response. The delay is cut short when the client
// goes away.
func WithLatency(d time.Duration) Option {
	return func(s *Stub) {
		s.latency = d
	}
}

// WithMalformedBody answers successful requests with a body that is not an
// orders array.
func WithMalformedBody() Option {
	return func(s *Stub) {
		s.body = []byte(`{"orders": "unavailable"`)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Stub) {
		s.logger = logger
	}
}

func New(opts ...Option) *Stub {
	s := &Stub{
		orders:        SomeValidOrders(5),
		failureStatus: http.StatusInternalServerError,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.body == nil {
		// Encoding plain structs cannot fail.
		s.body, _ = json.Marshal(s.orders)
	}

	return s
}

// Orders returns the records served on success.
func (s *Stub) Orders() []order.Order {
	return s.orders
}

// Hits is the number of requests received on the orders path.
func (s *Stub) Hits() int {
	return int(s.hits.Load())
}

// Handler routes the orders path and a health endpoint.
func (s *Stub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(OrdersPath, s)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

func (s *Stub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hit := s.hits.Add(1)
	requestID := r.Header.Get("X-Request-Id")

	if requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}

	if s.latency > 0 {
		timer := time.NewTimer(s.latency)
		select {
		case <-timer.C:
		case <-r.Context().Done():
			timer.Stop()
			s.logger.Debug("Client went away", slog.Int64("hit", hit), slog.String("request_id", requestID))
			return
		}
	}

	if hit <= s.failures {
		s.logger.Debug("Serving scripted failure",
			slog.Int64("hit", hit),
			slog.Int("status", s.failureStatus),
			slog.String("request_id", requestID))
		http.Error(w, http.StatusText(s.failureStatus), s.failureStatus)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(s.body)
}
