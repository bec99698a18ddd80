package config

import (
	"errors"
	"time"
)

// MonitorConfig holds the liveness and stuck-job monitor configuration.
type MonitorConfig struct {
	// IntervalSeconds between monitor sweeps.
	IntervalSeconds int `env:"MONITOR_INTERVAL_SECONDS" default:"60"`

	// ClaimedTimeoutSeconds before a claimed job is released back to pending.
	ClaimedTimeoutSeconds int `env:"CLAIMED_JOB_TIMEOUT_SECONDS" default:"300"`

	// ProcessingTimeoutSeconds before a processing job is failed.
	ProcessingTimeoutSeconds int `env:"PROCESSING_JOB_TIMEOUT_SECONDS" default:"600"`

	// BotDownThresholdSeconds of heartbeat silence before a bot reads as down.
	BotDownThresholdSeconds int `env:"BOT_DOWN_THRESHOLD_SECONDS" default:"120"`

	// MaxRecoveriesPerRun caps how many stuck jobs one sweep may touch.
	MaxRecoveriesPerRun int `env:"MONITOR_MAX_RECOVERIES" default:"100"`
}

// Validate validates the monitor configuration.
func (c *MonitorConfig) Validate() error {
	if c.IntervalSeconds <= 0 {
		return errors.New("MONITOR_INTERVAL_SECONDS must be positive")
	}
	if c.ClaimedTimeoutSeconds <= 0 {
		return errors.New("CLAIMED_JOB_TIMEOUT_SECONDS must be positive")
	}
	if c.ProcessingTimeoutSeconds <= 0 {
		return errors.New("PROCESSING_JOB_TIMEOUT_SECONDS must be positive")
	}
	if c.BotDownThresholdSeconds <= 0 {
		return errors.New("BOT_DOWN_THRESHOLD_SECONDS must be positive")
	}
	if c.MaxRecoveriesPerRun <= 0 {
		return errors.New("MONITOR_MAX_RECOVERIES must be positive")
	}
	return nil
}

// Interval returns the sweep interval as a duration.
func (c *MonitorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ClaimedTimeout returns the claimed-job timeout as a duration.
func (c *MonitorConfig) ClaimedTimeout() time.Duration {
	return time.Duration(c.ClaimedTimeoutSeconds) * time.Second
}

// ProcessingTimeout returns the processing-job timeout as a duration.
func (c *MonitorConfig) ProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSeconds) * time.Second
}

// BotDownThreshold returns the heartbeat silence threshold as a duration.
func (c *MonitorConfig) BotDownThreshold() time.Duration {
	return time.Duration(c.BotDownThresholdSeconds) * time.Second
}

// PopulatorConfig holds the synthetic job populator configuration.
type PopulatorConfig struct {
	// Enabled toggles the populator loop.
	Enabled bool `env:"POPULATOR_ENABLED" default:"true"`

	// IntervalMS between populate cycles.
	IntervalMS int `env:"POPULATE_INTERVAL_MS" default:"600000"`

	// BatchSize is how many jobs one cycle inserts.
	BatchSize int `env:"BATCH_SIZE" default:"5"`

	// MaxPending stops population while the backlog is at or above this.
	MaxPending int `env:"POPULATOR_MAX_PENDING" default:"10000"`
}

// Validate validates the populator configuration.
func (c *PopulatorConfig) Validate() error {
	if c.IntervalMS <= 0 {
		return errors.New("POPULATE_INTERVAL_MS must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.MaxPending <= 0 {
		return errors.New("POPULATOR_MAX_PENDING must be positive")
	}
	return nil
}

// Interval returns the populate interval as a duration.
func (c *PopulatorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}
