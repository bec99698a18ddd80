package datalake

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileSink appends NDJSON records to one file per UTC calendar day,
// named results-YYYY-MM-DD.ndjson under the configured directory.
type FileSink struct {
	dir string

	// now is replaceable in tests.
	now func() time.Time
}

// NewFileSink creates the directory if needed and returns a sink over it.
func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create datalake directory: %w", err)
	}
	return &FileSink{dir: dir, now: time.Now}, nil
}

// Append writes one record as a single NDJSON line. The file is opened in
// append mode per call so concurrent writers interleave at line granularity.
func (s *FileSink) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode datalake record: %w", err)
	}
	line = append(line, '\n')

	path := filepath.Join(s.dir, fmt.Sprintf("results-%s.ndjson", s.now().UTC().Format("2006-01-02")))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open datalake file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append datalake record: %w", err)
	}
	return nil
}
