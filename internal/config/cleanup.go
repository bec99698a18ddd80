package config

import (
	"errors"
	"time"
)

// CleanupConfig holds the retention cleaner configuration.
type CleanupConfig struct {
	// Enabled toggles the periodic cleanup loop.
	Enabled bool `env:"CLEANUP_ENABLED" default:"true"`

	// RetentionDays keeps soft-deleted bots and their history this long.
	RetentionDays int `env:"BOT_RETENTION_DAYS" default:"7"`

	// IntervalHours between cleanup runs.
	IntervalHours int `env:"CLEANUP_INTERVAL_HOURS" default:"6"`
}

// Validate validates the cleanup configuration.
func (c *CleanupConfig) Validate() error {
	if c.RetentionDays <= 0 {
		return errors.New("BOT_RETENTION_DAYS must be positive")
	}
	if c.IntervalHours <= 0 {
		return errors.New("CLEANUP_INTERVAL_HOURS must be positive")
	}
	return nil
}

// Retention returns the retention window as a duration.
func (c *CleanupConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Interval returns the run interval as a duration.
func (c *CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalHours) * time.Hour
}
