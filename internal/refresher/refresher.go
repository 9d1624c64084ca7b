package refresher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/angeloszaimis/resilient-orders/internal/order"
)

type FetchFunc func(ctx context.Context) ([]order.Order, error)

var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a schedule New accepts.
func ValidateSchedule(expr string) error {
	_, err := parser.Parse(expr)
	return err
}

// Refresher periodically fetches the orders list into a Store so the
// fallback strategies have a recent list to serve.
type Refresher struct {
	schedule cron.Schedule
	expr     string
	timeout  time.Duration
	fetch    FetchFunc
	store    *Store
	logger   *slog.Logger
}

// New validates expr (a cron expression with optional seconds field, or a
// descriptor such as "@every 30s") and returns a Refresher writing to store.
// Each refresh is bounded by timeout.
func New(expr string, timeout time.Duration, fetch FetchFunc, store *Store, logger *slog.Logger) (*Refresher, error) {
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", expr, err)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("refresh timeout must be positive, got %s", timeout)
	}

	return &Refresher{
		schedule: schedule,
		expr:     expr,
		timeout:  timeout,
		fetch:    fetch,
		store:    store,
		logger:   logger.With(slog.String("component", "refresher")),
	}, nil
}

// Refresh fetches once and stores the result on success. The previous list
// is kept on failure.
func (r *Refresher) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	orders, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("Orders refresh failed, keeping previous list",
			slog.Int("orders", len(r.store.Orders())),
			slog.Any("err", err))
		return err
	}

	r.store.Set(orders, time.Now())
	r.logger.Debug("Orders refreshed", slog.Int("orders", len(orders)))

	return nil
}

// Run refreshes immediately, then on schedule until ctx is cancelled. Runs
// never overlap.
func (r *Refresher) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() {
		_ = r.Refresh(ctx)
	}))

	_ = r.Refresh(ctx)

	c.Start()
	r.logger.Info("Orders refresher started", slog.String("schedule", r.expr))

	<-ctx.Done()

	<-c.Stop().Done()
	r.logger.Info("Orders refresher stopped")

	return nil
}
