package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v5"

	"github.com/angeloszaimis/resilient-orders/internal/backoff"
	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/metrics"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

// AttemptFunc is one fetch of the orders list. The decorators below wrap an
// AttemptFunc in a resilience behaviour and can be nested freely:
//
//	f.Fallback(f.CircuitBreaker(f.Timeout(f.Retry(f.Attempt(), 3, bo), 2*time.Second), cb), cached)
type AttemptFunc func(ctx context.Context) ([]order.Order, error)

func invalid(format string, args ...any) AttemptFunc {
	err := fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
	return func(context.Context) ([]order.Order, error) {
		return nil, err
	}
}

// Fallback serves fallback whenever next fails with a classified failure.
func (f *ResilientFetcher) Fallback(next AttemptFunc, fallback []order.Order) AttemptFunc {
	return f.FallbackTo(next, func() []order.Order { return fallback })
}

// FallbackTo is Fallback with the fallback list resolved at failure time.
func (f *ResilientFetcher) FallbackTo(next AttemptFunc, source func() []order.Order) AttemptFunc {
	return func(ctx context.Context) ([]order.Order, error) {
		orders, err := next(ctx)
		if err == nil {
			return orders, nil
		}
		if !failure.IsClassified(err) {
			return nil, err
		}

		fallback := source()
		f.logger.Warn("Serving fallback orders",
			slog.String("cause", failure.KindOf(err).String()),
			slog.Int("orders", len(fallback)),
			slog.Any("err", err))
		f.collector.Emit(metrics.MetricEvent{Type: metrics.EventFallbackServed})

		return fallback, nil
	}
}

// Retry repeats next after transient failures. See FetchWithRetries.
func (f *ResilientFetcher) Retry(next AttemptFunc, maxRetries int, cfg backoff.Config) AttemptFunc {
	if maxRetries < 0 {
		return invalid("max retries must not be negative, got %d", maxRetries)
	}
	if err := cfg.Validate(); err != nil {
		return invalid("backoff: %v", err)
	}

	return func(ctx context.Context) ([]order.Order, error) {
		attempts := 0

		orders, err := retry.NewWithData[[]order.Order](
			retry.Context(ctx),
			retry.Attempts(uint(maxRetries)+1),
			retry.RetryIf(failure.IsTransient),
			// n is 1 before the second request
			retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
				return backoff.DelayFor(int(n)-1, cfg)
			}),
			retry.OnRetry(func(n uint, err error) {
				if int(n) >= maxRetries {
					return
				}
				delay := backoff.DelayFor(int(n), cfg)
				f.logger.Debug("Retrying orders fetch",
					slog.Int("attempt", int(n)+1),
					slog.Duration("delay", delay),
					slog.Any("err", err))
				f.collector.Emit(metrics.MetricEvent{Type: metrics.EventRetryScheduled, Delay: delay})
			}),
			retry.LastErrorOnly(true),
		).Do(func() ([]order.Order, error) {
			attempts++
			return next(ctx)
		})

		if err == nil {
			return orders, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if !failure.IsTransient(err) {
			return nil, err
		}

		f.logger.Warn("Giving up on orders fetch",
			slog.Int("attempts", attempts),
			slog.Any("err", err))
		return nil, failure.MaxRetries(attempts, err)
	}
}

// Timeout bounds next by timeout. See FetchWithTimeout.
func (f *ResilientFetcher) Timeout(next AttemptFunc, timeout time.Duration) AttemptFunc {
	if timeout <= 0 {
		return invalid("timeout must be positive, got %s", timeout)
	}

	type result struct {
		orders []order.Order
		err    error
	}

	return func(ctx context.Context) ([]order.Order, error) {
		attemptCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Buffered: the helper's send must never block.
		done := make(chan result, 1)
		go func() {
			orders, err := next(attemptCtx)
			done <- result{orders: orders, err: err}
		}()

		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case res := <-done:
			return res.orders, res.err
		case <-timer.C:
			f.logger.Warn("Orders fetch timed out", slog.Duration("timeout", timeout))
			return nil, failure.Timeout(timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CircuitBreaker guards next with the fetcher's breaker. See
// FetchWithCircuitBreaker.
func (f *ResilientFetcher) CircuitBreaker(next AttemptFunc, cfg circuitbreaker.Config) AttemptFunc {
	if err := cfg.Validate(); err != nil {
		return invalid("circuit breaker: %v", err)
	}

	return func(ctx context.Context) ([]order.Order, error) {
		cb := f.breakerFor(cfg)

		permit, err := cb.BeforeCall()
		if err != nil {
			f.collector.Emit(metrics.MetricEvent{Type: metrics.EventCallRejected})
			return nil, failure.CircuitOpen(cb.RetryAfter())
		}

		orders, err := next(ctx)
		switch {
		case err == nil:
			cb.AfterCall(permit, true)
		case failure.IsClassified(err):
			cb.AfterCall(permit, false)
		default:
			cb.Release(permit)
		}

		return orders, err
	}
}

// breakerFor returns the fetcher's single breaker, creating it on first use
// and applying cfg if it differs from the last one seen.
func (f *ResilientFetcher) breakerFor(cfg circuitbreaker.Config) *circuitbreaker.CircuitBreaker {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.breaker == nil {
		f.breaker = circuitbreaker.New(cfg,
			circuitbreaker.WithClock(f.now),
			circuitbreaker.WithStateChange(f.breakerStateChanged),
		)
		f.breakerConfig = cfg
		return f.breaker
	}

	if cfg != f.breakerConfig {
		f.breaker.Reconfigure(cfg)
		f.breakerConfig = cfg
	}

	return f.breaker
}

func (f *ResilientFetcher) breakerStateChanged(from, to circuitbreaker.State) {
	level := slog.LevelInfo
	if to == circuitbreaker.StateOpen {
		level = slog.LevelWarn
	}
	f.logger.Log(context.Background(), level, "Circuit breaker state changed",
		slog.String("from", from.String()),
		slog.String("to", to.String()))

	f.collector.Emit(metrics.MetricEvent{
		Type:  metrics.EventBreakerTransition,
		State: to.String(),
	})
}
