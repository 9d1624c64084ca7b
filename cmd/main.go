// resilient-orders serves the orders list through a configurable resilience
// strategy, fetches it once from the command line, or runs a scripted orders
// upstream for local experiments.
//
// Exit codes:
//
//	0: success
//	1: runtime failure (including a failed fetch)
//	2: invalid flags or configuration
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

var Version = "0.1.0-dev"

// usageError marks failures caused by the invocation rather than the run.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }

func (e *usageError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func newApp(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "resilient-orders",
		Usage:   "resilient client and gateway for the orders endpoint",
		Version: Version,
		Writer:  stdout,
		Commands: []*cli.Command{
			serveCommand(),
			fetchCommand(),
			stubCommand(),
		},
		// Exit codes are mapped by run.
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(stdout).Run(ctx, args); err != nil {
		var usageErr *usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "usage error: %v\n", usageErr)
			return 2
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
