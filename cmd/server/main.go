package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	botapp "github.com/rezkam/flotilla/internal/application/bot"
	jobapp "github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/application/monitor"
	"github.com/rezkam/flotilla/internal/config"
	"github.com/rezkam/flotilla/internal/datalake"
	httpinfra "github.com/rezkam/flotilla/internal/infrastructure/http"
	"github.com/rezkam/flotilla/internal/infrastructure/http/handler"
	"github.com/rezkam/flotilla/internal/infrastructure/persistence/postgres"
	"github.com/rezkam/flotilla/internal/operation"
	"github.com/rezkam/flotilla/pkg/observability"
)

// recoveryBatchSize is how many stuck jobs a monitor sweep reads per
// storage round-trip.
const recoveryBatchSize = 10

func main() {
	if err := run(); err != nil {
		// slog may not be initialized if config loading fails.
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Root context for all normal operations; cancels on SIGTERM/SIGINT.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTelemetry, err := observability.Setup(ctx, observability.Config{
		ServiceName: "flotilla-coordinator",
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelCollector,
	})
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer func() {
		// Bounded so an unreachable collector cannot hang shutdown.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "failed to shutdown telemetry", "error", err)
		}
	}()

	slog.InfoContext(ctx, "starting coordinator", "env", cfg.Server.Env)

	store, err := postgres.NewStoreWithConfig(ctx, postgres.DBConfig{
		DSN:         cfg.Database.DSN,
		MinConns:    cfg.Database.MinConns,
		MaxConns:    cfg.Database.MaxConns,
		AutoMigrate: cfg.Database.AutoMigrate,
	})
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer store.Close()

	slog.InfoContext(ctx, "storage initialized", "url", maskPassword(cfg.Database.DSN))

	registry := operation.NewRegistry()
	slog.InfoContext(ctx, "operation registry loaded", "operations", registry.Names())

	sink, err := newSink(ctx, cfg.Datalake)
	if err != nil {
		return fmt.Errorf("failed to create datalake sink: %w", err)
	}

	jobService := jobapp.NewService(postgres.JobStore{Store: store}, registry, sink, jobapp.Config{
		MaxPending: cfg.Populator.MaxPending,
	})
	botService := botapp.NewService(postgres.BotStore{Store: store}, jobService, registry, botapp.Config{
		DownThreshold: cfg.Monitor.BotDownThreshold(),
	})

	cleaner := monitor.NewRetentionCleaner(store, cfg.Cleanup.Interval(), cfg.Cleanup.Retention())

	// Monitors run as independent loops; each one logs and continues on
	// cycle failures.
	if cfg.Populator.Enabled {
		populator := monitor.NewPopulator(jobService, cfg.Populator.Interval(), cfg.Populator.BatchSize)
		go func() {
			if err := populator.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "populator stopped", "error", err)
			}
		}()
	}

	claimedMonitor := monitor.NewClaimedJobMonitor(jobService,
		cfg.Monitor.Interval(), cfg.Monitor.ClaimedTimeout(), cfg.Monitor.MaxRecoveriesPerRun, recoveryBatchSize)
	go func() {
		if err := claimedMonitor.Start(ctx); err != nil {
			slog.ErrorContext(ctx, "claimed-job monitor stopped", "error", err)
		}
	}()

	processingMonitor := monitor.NewProcessingJobMonitor(jobService,
		cfg.Monitor.Interval(), cfg.Monitor.ProcessingTimeout(), cfg.Monitor.MaxRecoveriesPerRun, recoveryBatchSize)
	go func() {
		if err := processingMonitor.Start(ctx); err != nil {
			slog.ErrorContext(ctx, "processing-job monitor stopped", "error", err)
		}
	}()

	healthMonitor := monitor.NewBotHealthMonitor(botService,
		cfg.Monitor.Interval(), cfg.Monitor.ProcessingTimeout())
	go func() {
		if err := healthMonitor.Start(ctx); err != nil {
			slog.ErrorContext(ctx, "bot-health monitor stopped", "error", err)
		}
	}()

	if cfg.Cleanup.Enabled {
		go func() {
			if err := cleaner.Start(ctx); err != nil {
				slog.ErrorContext(ctx, "retention cleaner stopped", "error", err)
			}
		}()
	}

	apiHandler := handler.NewRouter(
		handler.NewCoordinatorHandler(jobService, botService, registry, cleaner),
		cfg.Server.AdminToken,
	)
	server := httpinfra.NewAPIServer(apiHandler, httpinfra.ServerConfig{
		Port:         cfg.Server.Port,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	errResult := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errResult <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(shutdownCtx, "HTTP server shutdown incomplete", "error", err)
		}
		return nil

	case err := <-errResult:
		return err
	}
}

// newSink builds the configured datalake backend.
func newSink(ctx context.Context, cfg config.DatalakeConfig) (datalake.Sink, error) {
	switch cfg.Backend {
	case "gcs":
		return datalake.NewGCSSink(ctx, cfg.Bucket)
	default:
		return datalake.NewFileSink(cfg.Dir)
	}
}

// maskPassword masks the password in a connection string for logging.
func maskPassword(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil {
		// If parsing fails, fall back to full redaction to be safe.
		return "[REDACTED]"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}
	return u.String()
}
