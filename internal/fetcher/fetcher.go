package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/backoff"
	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/metrics"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

//go:generate mockgen -destination=mock_transport_test.go -package=fetcher_test . Transport

// ErrInvalidArgument is returned when an operation is called with parameters
// outside their documented range. The transport is not contacted.
var ErrInvalidArgument = errors.New("invalid argument")

const (
	OperationPlain          = "plain"
	OperationFallback       = "fallback"
	OperationRetry          = "retry"
	OperationTimeout        = "timeout"
	OperationCircuitBreaker = "circuit-breaker"
)

// Transport performs exactly one request to the orders endpoint.
type Transport interface {
	Attempt(ctx context.Context) ([]order.Order, error)
}

// ResilientFetcher fetches orders from a single Transport, optionally
// guarded by fallback, retries, a deadline or a circuit breaker. It is safe
// for concurrent use.
type ResilientFetcher struct {
	transport Transport
	logger    *slog.Logger
	collector *metrics.Collector
	now       func() time.Time

	mutex         sync.Mutex
	breaker       *circuitbreaker.CircuitBreaker
	breakerConfig circuitbreaker.Config
}

type Option func(*ResilientFetcher)

func WithLogger(logger *slog.Logger) Option {
	return func(f *ResilientFetcher) {
		f.logger = logger
	}
}

func WithMetrics(collector *metrics.Collector) Option {
	return func(f *ResilientFetcher) {
		f.collector = collector
	}
}

// WithClock sets the time source used by the circuit breaker.
func WithClock(now func() time.Time) Option {
	return func(f *ResilientFetcher) {
		f.now = now
	}
}

func New(transport Transport, opts ...Option) *ResilientFetcher {
	f := &ResilientFetcher{
		transport: transport,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(slog.String("component", "fetcher"))

	return f
}

// Fetch performs a single attempt and returns its outcome unchanged.
func (f *ResilientFetcher) Fetch(ctx context.Context) ([]order.Order, error) {
	return f.Observe(ctx, OperationPlain, f.attempt)
}

// FetchWithFallback returns fallback, unchanged, when the attempt fails with
// a classified failure. Cancellation of ctx is still reported as an error.
func (f *ResilientFetcher) FetchWithFallback(ctx context.Context, fallback []order.Order) ([]order.Order, error) {
	return f.Observe(ctx, OperationFallback, f.Fallback(f.attempt, fallback))
}

// FetchWithRetries makes up to maxRetries+1 sequential attempts, waiting
// backoff.DelayFor(i, cfg) after failed attempt i. Only transient failures
// are retried. When every attempt fails the result is failure.ErrMaxRetries
// wrapping the last failure; other failures are returned as soon as they
// occur.
func (f *ResilientFetcher) FetchWithRetries(ctx context.Context, maxRetries int, cfg backoff.Config) ([]order.Order, error) {
	return f.Observe(ctx, OperationRetry, f.Retry(f.attempt, maxRetries, cfg))
}

// FetchWithTimeout returns failure.ErrTimeout if the attempt has not
// completed within timeout. The abandoned attempt is cancelled in the
// background and its late result discarded.
func (f *ResilientFetcher) FetchWithTimeout(ctx context.Context, timeout time.Duration) ([]order.Order, error) {
	return f.Observe(ctx, OperationTimeout, f.Timeout(f.attempt, timeout))
}

// FetchWithCircuitBreaker consults the fetcher's circuit breaker before a
// single attempt and records its outcome. Rejected calls return
// failure.ErrCircuitOpen without contacting the transport. cfg is applied to
// the breaker on every call.
func (f *ResilientFetcher) FetchWithCircuitBreaker(ctx context.Context, cfg circuitbreaker.Config) ([]order.Order, error) {
	return f.Observe(ctx, OperationCircuitBreaker, f.CircuitBreaker(f.attempt, cfg))
}

// Attempt returns the undecorated single-attempt fetch for composition.
func (f *ResilientFetcher) Attempt() AttemptFunc {
	return f.attempt
}

// BreakerSnapshot reports the breaker state. ok is false until the first
// circuit-breaker call created the breaker.
func (f *ResilientFetcher) BreakerSnapshot() (snap circuitbreaker.Snapshot, ok bool) {
	f.mutex.Lock()
	cb := f.breaker
	f.mutex.Unlock()

	if cb == nil {
		return circuitbreaker.Snapshot{}, false
	}
	return cb.Snapshot(), true
}

func (f *ResilientFetcher) attempt(ctx context.Context) ([]order.Order, error) {
	start := time.Now()
	orders, err := f.transport.Attempt(ctx)

	f.collector.Emit(metrics.MetricEvent{
		Type:       metrics.EventAttemptCompleted,
		Outcome:    outcome(err),
		Duration:   time.Since(start),
		StatusCode: statusCode(err),
	})

	return orders, err
}

// Observe runs fn as a named operation and reports its outcome and latency.
func (f *ResilientFetcher) Observe(ctx context.Context, operation string, fn AttemptFunc) ([]order.Order, error) {
	start := time.Now()
	orders, err := fn(ctx)
	duration := time.Since(start)

	f.collector.Emit(metrics.MetricEvent{
		Type:      metrics.EventCallCompleted,
		Operation: operation,
		Outcome:   outcome(err),
		Duration:  duration,
	})

	if err != nil {
		f.logger.Debug("Fetch failed",
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.Any("err", err))
	}

	return orders, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case failure.IsClassified(err):
		return failure.KindOf(err).String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	default:
		return "error"
	}
}

func statusCode(err error) int {
	if err == nil {
		return 200
	}

	var fe *failure.Error
	if errors.As(err, &fe) && fe.Kind == failure.KindServer {
		return fe.Status
	}
	return 0
}
