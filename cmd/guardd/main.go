package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"meowauth/internal/app"
	"meowauth/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, app.ErrGuardShutdown) {
			application.Logger.Error("Host terminated by license guard", slog.String("error", err.Error()))
		} else {
			application.Logger.Error("Application error", slog.String("error", err.Error()))
		}
		return 1
	}
	return 0
}
