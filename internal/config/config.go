package config

import (
	"fmt"

	"github.com/rezkam/flotilla/internal/env"
)

// Config holds the full coordinator configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Monitor   MonitorConfig
	Populator PopulatorConfig
	Cleanup   CleanupConfig
	Datalake  DatalakeConfig

	// Observability configuration
	OTelEnabled   bool   `env:"OTEL_ENABLED" default:"false"`
	OTelCollector string `env:"OTEL_COLLECTOR" default:"localhost:4318"`
}

// Load parses environment variables into a Config struct.
// Nested sections validate themselves during loading.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Load(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}
