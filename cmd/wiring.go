package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/resilient-orders/config"
	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/order"
	"github.com/angeloszaimis/resilient-orders/internal/refresher"
	"github.com/angeloszaimis/resilient-orders/internal/strategy"
	"github.com/angeloszaimis/resilient-orders/internal/upstream"
	"github.com/angeloszaimis/resilient-orders/pkg/logger"
)

func loggerOptions(cfg config.LoggingConfig, environment string) logger.Options {
	return logger.Options{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		Environment: environment,
		File:        cfg.File,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
		MaxAgeDays:  cfg.MaxAgeDays,
	}
}

func newUpstream(cfg config.UpstreamConfig, log *slog.Logger) (*upstream.Client, error) {
	opts := []upstream.Option{upstream.WithLogger(log)}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, upstream.WithHTTPClient(&http.Client{
			Transport: http.DefaultTransport.(*http.Transport).Clone(),
			Timeout:   cfg.RequestTimeout,
		}))
	}

	return upstream.New(cfg.URL, opts...)
}

func strategySettings(cfg config.ResilienceConfig, fallback func() []order.Order) strategy.Settings {
	return strategy.Settings{
		MaxRetries:     cfg.MaxRetries,
		Backoff:        cfg.Backoff,
		Timeout:        cfg.Timeout,
		CircuitBreaker: cfg.CircuitBreaker,
		Fallback:       fallback,
	}
}

func createStrategy(log *slog.Logger, cfg config.ResilienceConfig, f *fetcher.ResilientFetcher, fallback func() []order.Order) (strategy.Strategy, error) {
	strat, err := strategy.New(cfg.Mode, f, strategySettings(cfg, fallback))
	if err != nil {
		log.Error("Unknown fetch strategy",
			slog.String("requested", cfg.Mode),
			slog.Any("available", strategy.Names()))
		return nil, err
	}

	return strat, nil
}

// refreshFetch is the fetch behind the background refresh: the guarded chain
// without a fallback, so refreshes share the gateway's breaker and stay away
// from an upstream it has opened on.
func refreshFetch(f *fetcher.ResilientFetcher, cfg config.ResilienceConfig) (refresher.FetchFunc, error) {
	guarded, err := strategy.New(strategy.Guarded, f, strategySettings(cfg, nil))
	if err != nil {
		return nil, err
	}

	return guarded.Fetch, nil
}
