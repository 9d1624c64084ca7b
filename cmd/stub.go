package main

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/resilient-orders/internal/httpserver"
	"github.com/angeloszaimis/resilient-orders/internal/ordersstub"
	"github.com/angeloszaimis/resilient-orders/pkg/logger"
)

func stubCommand() *cli.Command {
	return &cli.Command{
		Name:  "stub",
		Usage: "run a scripted orders upstream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Value: ":8081", Usage: "listen address"},
			&cli.IntFlag{Name: "orders", Value: 5, Usage: "number of orders served"},
			&cli.IntFlag{Name: "errors", Value: 0, Usage: "fail this many requests before succeeding, -1 fails forever"},
			&cli.IntFlag{Name: "error-status", Value: http.StatusInternalServerError, Usage: "status code of failed requests"},
			&cli.DurationFlag{Name: "latency", Usage: "delay before every response"},
			&cli.BoolFlag{Name: "malformed", Usage: "answer with a body that is not an orders array"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn or error"},
		},
		Action: stubAction,
	}
}

func stubAction(ctx context.Context, cmd *cli.Command) error {
	log := logger.New(logger.Options{Level: cmd.String("log-level"), Environment: "dev"})

	opts := []ordersstub.Option{
		ordersstub.WithOrders(int(cmd.Int("orders"))),
		ordersstub.WithLatency(cmd.Duration("latency")),
		ordersstub.WithLogger(log),
	}
	switch errs := int(cmd.Int("errors")); {
	case errs < 0:
		opts = append(opts, ordersstub.WithPermanentFailure(int(cmd.Int("error-status"))))
	case errs > 0:
		opts = append(opts, ordersstub.WithFailures(errs, int(cmd.Int("error-status"))))
	}
	if cmd.Bool("malformed") {
		opts = append(opts, ordersstub.WithMalformedBody())
	}

	stub := ordersstub.New(opts...)

	srv, err := httpserver.New(cmd.String("address"), stub.Handler(), httpserver.Timeouts{
		Write: cmd.Duration("latency") + httpserver.DefaultTimeouts.Write,
	})
	if err != nil {
		return &usageError{err: err}
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("Orders stub listening",
			slog.String("address", srv.Addr()),
			slog.Int("orders", len(stub.Orders())))
		return srv.Start()
	})
	group.Go(func() error {
		<-ctx.Done()
		log.Info("Orders stub stopped", slog.Int("hits", stub.Hits()))
		return srv.Shutdown(context.Background())
	})

	return group.Wait()
}
