// Command bidictl drives a WebDriver BiDi remote end from the terminal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/vango-dev/webdriverbidi/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		errors.PrintError(err)
		stop()
		os.Exit(1)
	}
}
