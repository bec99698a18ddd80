package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/rezkam/flotilla/internal/env"
)

// BotConfig holds the worker bot runtime configuration.
type BotConfig struct {
	// ServerURL is the coordinator base URL.
	ServerURL string `env:"SERVER_URL" default:"http://localhost:8000"`

	// Name identifies the bot; empty generates one at startup.
	Name string `env:"BOT_NAME"`

	// Operation pins the bot to one operation; empty claims any.
	Operation string `env:"BOT_OPERATION"`

	// PollIntervalMS between claim attempts while idle.
	PollIntervalMS int `env:"BOT_POLL_INTERVAL_MS" default:"2000"`

	// HeartbeatSeconds between heartbeat calls.
	HeartbeatSeconds int `env:"BOT_HEARTBEAT_SECONDS" default:"30"`
}

// LoadBotConfig loads and validates bot configuration from environment.
func LoadBotConfig() (*BotConfig, error) {
	cfg := &BotConfig{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load bot config: %w", err)
	}

	return cfg, nil
}

// Validate validates the bot configuration.
func (c *BotConfig) Validate() error {
	if c.ServerURL == "" {
		return errors.New("SERVER_URL must not be empty")
	}
	if c.PollIntervalMS <= 0 {
		return errors.New("BOT_POLL_INTERVAL_MS must be positive")
	}
	if c.HeartbeatSeconds <= 0 {
		return errors.New("BOT_HEARTBEAT_SECONDS must be positive")
	}
	return nil
}

// PollInterval returns the claim poll interval as a duration.
func (c *BotConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// HeartbeatInterval returns the heartbeat interval as a duration.
func (c *BotConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatSeconds) * time.Second
}
