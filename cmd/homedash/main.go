package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/homedash/homedash/pkg/api"
	"github.com/homedash/homedash/pkg/log"
	"github.com/homedash/homedash/pkg/metrics"
	"github.com/homedash/homedash/pkg/server"
	"github.com/homedash/homedash/pkg/storage"
	"github.com/homedash/homedash/pkg/store"

	"github.com/levenlabs/go-lflag"
	"github.com/levenlabs/go-llog"
)

func main() {
	m := metrics.New()

	// init packages
	client := api.Configured(m)
	st := store.New(client, m)
	s := storage.Configured()

	// init server
	srv := server.Configured(st, s, m)

	// parse flags
	lflag.Configure()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slogLevel(),
	}))
	slog.SetDefault(logger)
	log.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	defer func() {
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	log.Ctx(ctx).InfoContext(ctx, "using backend", slog.String("baseURL", client.BaseURL()))

	// Run will block until context is canceled or error happens
	if err := srv.Run(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "server failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "server exited cleanly")
}

// slogLevel maps the level lflag configured on llog to slog.
func slogLevel() slog.Level {
	switch llog.GetLevel() {
	case llog.DebugLevel:
		return slog.LevelDebug
	case llog.InfoLevel:
		return slog.LevelInfo
	case llog.WarnLevel:
		return slog.LevelWarn
	case llog.ErrorLevel:
		return slog.LevelError
	default:
		panic(fmt.Errorf("unknown log level: %s", llog.GetLevel().String()))
	}
}
