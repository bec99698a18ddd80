package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/flotilla/internal/config"
	"github.com/rezkam/flotilla/internal/operation"
	"github.com/rezkam/flotilla/internal/worker"
	"github.com/rezkam/flotilla/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadBotConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := observability.Setup(ctx, observability.Config{
		ServiceName: "flotilla-bot",
	})
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown telemetry", "error", err)
		}
	}()

	bot := worker.NewBot(worker.NewClient(cfg.ServerURL), operation.NewRegistry(), worker.BotConfig{
		ID:                cfg.Name,
		Operation:         cfg.Operation,
		PollInterval:      cfg.PollInterval(),
		HeartbeatInterval: cfg.HeartbeatInterval(),
	})

	slog.InfoContext(ctx, "starting bot", "bot_id", bot.ID(), "server_url", cfg.ServerURL)
	return bot.Start(ctx)
}
