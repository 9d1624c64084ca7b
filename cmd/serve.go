package main

import (
	"context"
	"log/slog"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/resilient-orders/config"
	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/handler"
	"github.com/angeloszaimis/resilient-orders/internal/httpserver"
	"github.com/angeloszaimis/resilient-orders/internal/metrics"
	"github.com/angeloszaimis/resilient-orders/internal/refresher"
	"github.com/angeloszaimis/resilient-orders/internal/strategy"
	"github.com/angeloszaimis/resilient-orders/pkg/logger"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve GET /orders through the configured strategy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file (default: ./config/config.yaml or ./config.yaml)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return &usageError{err: err}
			}

			log := logger.New(loggerOptions(cfg.Logging, cfg.Server.Environment))

			gw, err := newGateway(cfg, log)
			if err != nil {
				return err
			}

			return gw.run(ctx)
		},
	}
}

// gateway is everything serve runs.
type gateway struct {
	logger    *slog.Logger
	server    *httpserver.Server
	collector *metrics.Collector
	refresher *refresher.Refresher
	strategy  strategy.Strategy
}

func newGateway(cfg *config.Config, log *slog.Logger) (*gateway, error) {
	collector := metrics.NewCollector(cfg.Metrics.BufferSize, log.With(slog.String("component", "metrics")))

	client, err := newUpstream(cfg.Upstream, log)
	if err != nil {
		log.Error("Failed to create upstream client", slog.Any("err", err))
		return nil, err
	}

	f := fetcher.New(client, fetcher.WithLogger(log), fetcher.WithMetrics(collector))
	store := refresher.NewStore(nil)

	strat, err := createStrategy(log, cfg.Resilience, f, store.Orders)
	if err != nil {
		return nil, err
	}

	gw := &gateway{
		logger:    log,
		collector: collector,
		strategy:  strat,
	}

	if cfg.Refresh.Enabled {
		refresh, err := refreshFetch(f, cfg.Resilience)
		if err != nil {
			return nil, err
		}
		gw.refresher, err = refresher.New(cfg.Refresh.Schedule, cfg.Refresh.Timeout, refresh, store, log)
		if err != nil {
			return nil, err
		}
	}

	router := setupRouter(log, handler.NewOrdersHandler(log, strat), f, client, collector, strat.Name())

	gw.server, err = httpserver.New(cfg.Server.Address, router, httpserver.Timeouts{
		Read:     cfg.Server.ReadTimeout,
		Write:    cfg.Server.WriteTimeout,
		Idle:     cfg.Server.IdleTimeout,
		Shutdown: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		return nil, err
	}

	return gw, nil
}

// run serves until ctx is cancelled or a component fails, then shuts the
// rest down.
func (gw *gateway) run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return gw.collector.Run(ctx)
	})

	if gw.refresher != nil {
		group.Go(func() error {
			return gw.refresher.Run(ctx)
		})
	}

	group.Go(func() error {
		gw.logger.Info("Orders gateway listening",
			slog.String("address", gw.server.Addr()),
			slog.String("strategy", gw.strategy.Name()))
		return gw.server.Start()
	})

	group.Go(func() error {
		<-ctx.Done()
		gw.logger.Info("Shutting down gracefully...")
		if err := gw.server.Shutdown(context.Background()); err != nil {
			gw.logger.Error("Error during shutdown", slog.Any("err", err))
			return err
		}
		return nil
	})

	return group.Wait()
}
