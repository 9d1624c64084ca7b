package strategy

import (
	"context"

	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

type plainStrategy struct {
	fetcher *fetcher.ResilientFetcher
}

func (s *plainStrategy) Name() string { return Plain }

func (s *plainStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.Fetch(ctx)
}

type fallbackStrategy struct {
	fetcher  *fetcher.ResilientFetcher
	settings Settings
}

func (s *fallbackStrategy) Name() string { return Fallback }

func (s *fallbackStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.FetchWithFallback(ctx, s.settings.fallback())
}

type retryStrategy struct {
	fetcher  *fetcher.ResilientFetcher
	settings Settings
}

func (s *retryStrategy) Name() string { return Retry }

func (s *retryStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.FetchWithRetries(ctx, s.settings.MaxRetries, s.settings.Backoff)
}

type timeoutStrategy struct {
	fetcher  *fetcher.ResilientFetcher
	settings Settings
}

func (s *timeoutStrategy) Name() string { return Timeout }

func (s *timeoutStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.FetchWithTimeout(ctx, s.settings.Timeout)
}

type breakerStrategy struct {
	fetcher  *fetcher.ResilientFetcher
	settings Settings
}

func (s *breakerStrategy) Name() string { return CircuitBreaker }

func (s *breakerStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.FetchWithCircuitBreaker(ctx, s.settings.CircuitBreaker)
}
