package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/rezkam/flotilla/internal/operation"
)

// BotConfig holds the bot runtime configuration.
type BotConfig struct {
	// ID identifies the bot; empty generates one at startup.
	ID string

	// Operation pins the bot to one operation; empty claims any.
	Operation string

	// PollInterval between claim attempts while idle.
	PollInterval time.Duration

	// HeartbeatInterval between heartbeat calls.
	HeartbeatInterval time.Duration
}

// Bot is a worker process: it registers once, heartbeats in the
// background, and runs a claim-execute-report loop until cancelled.
type Bot struct {
	client   *Client
	registry *operation.Registry
	cfg      BotConfig
	wg       sync.WaitGroup
}

// NewBot creates a bot runtime. Zero config fields get defaults.
func NewBot(client *Client, registry *operation.Registry, cfg BotConfig) *Bot {
	if cfg.ID == "" {
		cfg.ID = "bot-" + uuid.NewString()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Bot{
		client:   client,
		registry: registry,
		cfg:      cfg,
	}
}

// ID returns the bot's identity.
func (b *Bot) ID() string {
	return b.cfg.ID
}

// Start registers the bot and runs the poll loop until ctx is
// cancelled. Registration is retried; the coordinator may still be
// coming up.
func (b *Bot) Start(ctx context.Context) error {
	backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := b.client.Register(ctx, b.cfg.ID, b.cfg.Operation); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register bot: %w", err)
	}

	slog.InfoContext(ctx, "bot registered",
		"bot_id", b.cfg.ID, "operation", b.cfg.Operation, "poll_interval", b.cfg.PollInterval)

	b.wg.Go(func() {
		b.runHeartbeat(ctx)
	})

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.RunProcessOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "processing cycle failed", "bot_id", b.cfg.ID, "error", err)
			}
		case <-ctx.Done():
			b.wg.Wait()
			slog.InfoContext(ctx, "bot stopped", "bot_id", b.cfg.ID)
			return nil
		}
	}
}

// runHeartbeat keeps the coordinator's liveness timestamp fresh until
// ctx is cancelled.
func (b *Bot) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.client.Heartbeat(ctx, b.cfg.ID); err != nil {
				slog.WarnContext(ctx, "heartbeat failed", "bot_id", b.cfg.ID, "error", err)
			}
		}
	}
}

// RunProcessOnce claims and executes a single job. Returns nil when no
// work is available or when the job reached a terminal state, including
// failure. Errors are coordinator or transport problems.
func (b *Bot) RunProcessOnce(ctx context.Context) error {
	job, err := b.client.Claim(ctx, b.cfg.ID)
	if err != nil {
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if job == nil {
		return nil
	}

	slog.InfoContext(ctx, "claimed job",
		"bot_id", b.cfg.ID, "job_id", job.ID, "operation", job.Operation)

	if err := b.client.Start(ctx, job.ID, b.cfg.ID); err != nil {
		// Someone else owns the job now (monitor recovery beat us);
		// drop it and poll again.
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsConflict() {
			slog.WarnContext(ctx, "lost job before start", "job_id", job.ID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to start job: %w", err)
	}

	started := time.Now()
	result, execErr := b.execute(job)
	durationMS := int(time.Since(started).Milliseconds())

	if execErr != nil {
		slog.InfoContext(ctx, "job execution failed",
			"job_id", job.ID, "operation", job.Operation, "error", execErr)
		if err := b.client.Fail(ctx, job.ID, b.cfg.ID, execErr.Error(), durationMS); err != nil {
			return fmt.Errorf("failed to report job failure: %w", err)
		}
		return nil
	}

	if err := b.client.Complete(ctx, job.ID, b.cfg.ID, result, durationMS); err != nil {
		return fmt.Errorf("failed to report job completion: %w", err)
	}

	slog.InfoContext(ctx, "job completed",
		"job_id", job.ID, "operation", job.Operation, "result", result, "duration_ms", durationMS)
	return nil
}

// execute runs the operation with panic recovery so a broken operation
// fails the job instead of killing the bot.
func (b *Bot) execute(job *Job) (result int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("operation panicked",
				"job_id", job.ID, "operation", job.Operation, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("operation panicked: %v", r)
		}
	}()
	return b.registry.Execute(job.Operation, job.A, job.B)
}
