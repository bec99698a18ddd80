package env

import (
	"errors"
	"testing"
	"time"
)

type nestedConfig struct {
	Interval time.Duration `env:"TEST_NESTED_INTERVAL" default:"30s"`
	valid    bool
}

func (n *nestedConfig) Validate() error {
	if n.Interval <= 0 {
		return errors.New("interval must be positive")
	}
	n.valid = true
	return nil
}

type testConfig struct {
	Name    string        `env:"TEST_NAME" default:"fallback"`
	Port    int           `env:"TEST_PORT" default:"8080"`
	Ratio   float64       `env:"TEST_RATIO"`
	Enabled bool          `env:"TEST_ENABLED" default:"true"`
	Nested  nestedConfig
}

func TestLoadDefaults(t *testing.T) {
	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Name != "fallback" {
		t.Errorf("Name = %q, want %q", cfg.Name, "fallback")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if !cfg.Enabled {
		t.Error("Enabled = false, want true")
	}
	if cfg.Nested.Interval != 30*time.Second {
		t.Errorf("Nested.Interval = %v, want 30s", cfg.Nested.Interval)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TEST_NAME", "flotilla")
	t.Setenv("TEST_PORT", "9000")
	t.Setenv("TEST_RATIO", "0.5")
	t.Setenv("TEST_NESTED_INTERVAL", "2m")

	var cfg testConfig
	if err := Load(&cfg); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Name != "flotilla" {
		t.Errorf("Name = %q, want %q", cfg.Name, "flotilla")
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.Ratio != 0.5 {
		t.Errorf("Ratio = %v, want 0.5", cfg.Ratio)
	}
	if cfg.Nested.Interval != 2*time.Minute {
		t.Errorf("Nested.Interval = %v, want 2m", cfg.Nested.Interval)
	}
}

func TestLoadInvalidValue(t *testing.T) {
	t.Setenv("TEST_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	if err == nil {
		t.Fatal("Load returned nil, want error")
	}

	var invalid ErrInvalidValue
	if !errors.As(err, &invalid) {
		t.Fatalf("error type = %T, want ErrInvalidValue", err)
	}
	if invalid.EnvVar != "TEST_PORT" {
		t.Errorf("EnvVar = %q, want TEST_PORT", invalid.EnvVar)
	}
}

func TestLoadNestedValidation(t *testing.T) {
	t.Setenv("TEST_NESTED_INTERVAL", "-5s")

	var cfg testConfig
	if err := Load(&cfg); err == nil {
		t.Fatal("Load returned nil, want nested validation error")
	}
}

func TestLoadRejectsNonPointer(t *testing.T) {
	var cfg testConfig
	err := Load(cfg)

	var notPtr ErrNotStructPointer
	if !errors.As(err, &notPtr) {
		t.Fatalf("error type = %T, want ErrNotStructPointer", err)
	}
}
