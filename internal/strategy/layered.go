package strategy

import (
	"context"

	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

// composedStrategy runs a decorator chain built once from the settings.
type composedStrategy struct {
	name    string
	fetcher *fetcher.ResilientFetcher
	chain   fetcher.AttemptFunc
}

func (s *composedStrategy) Name() string { return s.name }

func (s *composedStrategy) Fetch(ctx context.Context) ([]order.Order, error) {
	return s.fetcher.Observe(ctx, s.name, s.chain)
}

// guardedChain is a retry sequence bounded by one overall deadline, run
// inside the circuit breaker. The deadline sits inside the breaker so a
// hanging upstream counts as a failure.
func guardedChain(f *fetcher.ResilientFetcher, settings Settings) fetcher.AttemptFunc {
	retrying := f.Retry(f.Attempt(), settings.MaxRetries, settings.Backoff)
	return f.CircuitBreaker(f.Timeout(retrying, settings.Timeout), settings.CircuitBreaker)
}

func newGuardedStrategy(f *fetcher.ResilientFetcher, settings Settings) Strategy {
	return &composedStrategy{
		name:    Guarded,
		fetcher: f,
		chain:   guardedChain(f, settings),
	}
}

// newLayeredStrategy is the guarded chain with the fallback source as the
// last resort.
func newLayeredStrategy(f *fetcher.ResilientFetcher, settings Settings) Strategy {
	return &composedStrategy{
		name:    Layered,
		fetcher: f,
		chain:   f.FallbackTo(guardedChain(f, settings), settings.fallback),
	}
}
