package domain

import "time"

// BotStatus is the stored runtime state of a bot.
type BotStatus string

const (
	BotStatusIdle BotStatus = "idle"
	BotStatusBusy BotStatus = "busy"
	BotStatusDown BotStatus = "down"
)

// IsValid reports whether s is a known bot status.
func (s BotStatus) IsValid() bool {
	switch s {
	case BotStatusIdle, BotStatusBusy, BotStatusDown:
		return true
	}
	return false
}

// BotHealth classifies a bot from the stuck-job monitors' perspective.
type BotHealth string

const (
	BotHealthNormal           BotHealth = "normal"
	BotHealthPotentiallyStuck BotHealth = "potentially_stuck"
	BotHealthUnhealthy        BotHealth = "unhealthy"
)

// StuckBot pairs a health-flagged bot with the overdue job that
// triggered the flag.
type StuckBot struct {
	BotID string
	JobID string
}

// ComputedStatus is the liveness-derived status shown to operators.
// It extends BotStatus with "deleted" for soft-deleted bots.
type ComputedStatus string

const (
	ComputedStatusDeleted ComputedStatus = "deleted"
	ComputedStatusDown    ComputedStatus = "down"
)

// Bot is a registered worker. Identity is caller-supplied on register.
type Bot struct {
	ID                string
	Status            BotStatus
	CurrentJobID      *string
	AssignedOperation *string
	LastHeartbeatAt   time.Time
	CreatedAt         time.Time
	DeletedAt         *time.Time
	HealthStatus      BotHealth
	StuckJobID        *string
	HealthCheckedAt   *time.Time
}

// IsDeleted reports whether the bot has been soft-deleted.
func (b *Bot) IsDeleted() bool {
	return b.DeletedAt != nil
}

// ComputedStatus derives the operator-facing status: deleted wins, then
// heartbeat silence beyond downAfter reads as down, else the stored status.
func (b *Bot) ComputedStatus(now time.Time, downAfter time.Duration) ComputedStatus {
	if b.IsDeleted() {
		return ComputedStatusDeleted
	}
	if now.Sub(b.LastHeartbeatAt) > downAfter {
		return ComputedStatusDown
	}
	return ComputedStatus(b.Status)
}
