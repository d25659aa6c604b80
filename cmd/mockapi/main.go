// Command mockapi serves a simulated smart home backend for local
// development of the dashboard.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/homedash/homedash/pkg/backend"
	"github.com/homedash/homedash/pkg/log"

	"github.com/levenlabs/go-lflag"
)

func main() {
	b := backend.Configured()
	lflag.Configure()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "mock api failed", slog.Any("error", err))
		os.Exit(1)
	}
}
