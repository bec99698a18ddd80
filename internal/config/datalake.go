package config

import "fmt"

// DatalakeConfig selects and configures the result sink.
type DatalakeConfig struct {
	// Backend is either "file" or "gcs".
	Backend string `env:"DATALAKE_BACKEND" default:"file"`

	// Dir is the NDJSON directory for the file backend.
	Dir string `env:"DATALAKE_DIR" default:"./datalake"`

	// Bucket is the GCS bucket for the gcs backend.
	Bucket string `env:"DATALAKE_BUCKET"`
}

// Validate validates the datalake configuration.
func (c *DatalakeConfig) Validate() error {
	switch c.Backend {
	case "file":
		if c.Dir == "" {
			return fmt.Errorf("DATALAKE_DIR is required when DATALAKE_BACKEND is 'file'")
		}
	case "gcs":
		if c.Bucket == "" {
			return fmt.Errorf("DATALAKE_BUCKET is required when DATALAKE_BACKEND is 'gcs'")
		}
	default:
		return fmt.Errorf("unknown DATALAKE_BACKEND: %s", c.Backend)
	}
	return nil
}
