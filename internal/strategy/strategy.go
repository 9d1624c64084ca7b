package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/angeloszaimis/resilient-orders/internal/backoff"
	"github.com/angeloszaimis/resilient-orders/internal/circuitbreaker"
	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/order"
)

const (
	Plain          = fetcher.OperationPlain
	Fallback       = fetcher.OperationFallback
	Retry          = fetcher.OperationRetry
	Timeout        = fetcher.OperationTimeout
	CircuitBreaker = fetcher.OperationCircuitBreaker
	Guarded        = "guarded"
	Layered        = "layered"
)

// Strategy is one way of fetching the orders list.
type Strategy interface {
	Name() string
	Fetch(ctx context.Context) ([]order.Order, error)
}

// Settings carries the parameters the strategies pass to the fetcher.
type Settings struct {
	MaxRetries     int
	Backoff        backoff.Config
	Timeout        time.Duration
	CircuitBreaker circuitbreaker.Config
	// Fallback supplies the list served when fetching fails. A nil source
	// serves an empty list.
	Fallback func() []order.Order
}

func (s Settings) fallback() []order.Order {
	if s.Fallback == nil {
		return []order.Order{}
	}
	return s.Fallback()
}

// Names lists every strategy accepted by New.
func Names() []string {
	return []string{Plain, Fallback, Retry, Timeout, CircuitBreaker, Guarded, Layered}
}

// New builds the named strategy on top of f.
func New(name string, f *fetcher.ResilientFetcher, settings Settings) (Strategy, error) {
	switch name {
	case Plain:
		return &plainStrategy{fetcher: f}, nil
	case Fallback:
		return &fallbackStrategy{fetcher: f, settings: settings}, nil
	case Retry:
		return &retryStrategy{fetcher: f, settings: settings}, nil
	case Timeout:
		return &timeoutStrategy{fetcher: f, settings: settings}, nil
	case CircuitBreaker:
		return &breakerStrategy{fetcher: f, settings: settings}, nil
	case Guarded:
		return newGuardedStrategy(f, settings), nil
	case Layered:
		return newLayeredStrategy(f, settings), nil
	default:
		return nil, fmt.Errorf("unknown fetch strategy %q", name)
	}
}
