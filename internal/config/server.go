package config

import "errors"

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Port the coordinator API listens on.
	Port string `env:"HTTP_PORT" default:"8000"`

	// AdminToken guards the /admin endpoints. Empty disables them.
	AdminToken string `env:"ADMIN_TOKEN"`

	// Env is the deployment environment (dev, prod).
	Env string `env:"APP_ENV" default:"dev"`

	// MaxBodyBytes caps request body size.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" default:"1048576"`
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("HTTP_PORT must not be empty")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("HTTP_MAX_BODY_BYTES must be positive")
	}
	return nil
}
