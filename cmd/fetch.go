package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/angeloszaimis/resilient-orders/config"
	"github.com/angeloszaimis/resilient-orders/internal/failure"
	"github.com/angeloszaimis/resilient-orders/internal/fetcher"
	"github.com/angeloszaimis/resilient-orders/internal/strategy"
	"github.com/angeloszaimis/resilient-orders/pkg/logger"
)

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:  "fetch",
		Usage: "fetch the orders list once and print it as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   fmt.Sprintf("fetch strategy, one of %v (overrides resilience.mode)", strategy.Names()),
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "orders endpoint (overrides upstream.url)",
			},
		},
		Action: fetchAction,
	}
}

func fetchAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return &usageError{err: err}
	}
	if mode := cmd.String("mode"); mode != "" {
		cfg.Resilience.Mode = mode
	}
	if url := cmd.String("url"); url != "" {
		cfg.Upstream.URL = url
	}
	if err := cfg.Validate(); err != nil {
		return &usageError{err: err}
	}

	// stdout carries the result.
	log := slog.New(logger.NewHandler(os.Stderr, loggerOptions(cfg.Logging, cfg.Server.Environment)))

	client, err := newUpstream(cfg.Upstream, log)
	if err != nil {
		return &usageError{err: err}
	}
	defer client.CloseIdleConnections()

	f := fetcher.New(client, fetcher.WithLogger(log))
	strat, err := createStrategy(log, cfg.Resilience, f, nil)
	if err != nil {
		return &usageError{err: err}
	}

	orders, err := strat.Fetch(ctx)
	if err != nil {
		log.Error("Fetch failed",
			slog.String("strategy", strat.Name()),
			slog.String("kind", failure.KindOf(err).String()),
			slog.Any("err", err))
		return err
	}

	encoder := json.NewEncoder(cmd.Root().Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(orders)
}
