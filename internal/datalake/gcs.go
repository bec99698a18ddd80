package datalake

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSSink archives results to a Cloud Storage bucket. Objects are immutable,
// so instead of one file per day it writes one object per result under a
// date prefix: results/YYYY-MM-DD/<result-id>.json.
type GCSSink struct {
	client *storage.Client
	bucket string

	now func() time.Time
}

// NewGCSSink creates a sink backed by the named bucket. Credentials come
// from the ambient environment (ADC).
func NewGCSSink(ctx context.Context, bucket string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, now: time.Now}, nil
}

func (s *GCSSink) objectName(day time.Time, id string) string {
	return fmt.Sprintf("results/%s/%s.json", day.UTC().Format("2006-01-02"), id)
}

// Append writes the record as one JSON object under today's prefix.
func (s *GCSSink) Append(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode datalake record: %w", err)
	}

	obj := s.client.Bucket(s.bucket).Object(s.objectName(s.now(), rec.ID))
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("failed to write datalake object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize datalake object: %w", err)
	}
	return nil
}

// ListDay returns the records archived for one UTC calendar day, used by
// reconciliation tooling.
func (s *GCSSink) ListDay(ctx context.Context, day time.Time) ([]Record, error) {
	prefix := fmt.Sprintf("results/%s/", day.UTC().Format("2006-01-02"))
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var records []Record
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list datalake objects: %w", err)
		}

		r, err := s.client.Bucket(s.bucket).Object(attrs.Name).NewReader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open datalake object %s: %w", attrs.Name, err)
		}

		var rec Record
		decodeErr := json.NewDecoder(r).Decode(&rec)
		r.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("failed to decode datalake object %s: %w", attrs.Name, decodeErr)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close releases the underlying client.
func (s *GCSSink) Close() error {
	return s.client.Close()
}
