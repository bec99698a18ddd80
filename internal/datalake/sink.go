// Package datalake appends terminal job results to an external archive.
// The archive is analytics-grade: appends are best-effort and the store's
// Result rows remain authoritative.
package datalake

import (
	"context"
	"time"

	"github.com/rezkam/flotilla/internal/domain"
)

// SchemaVersion is stamped on every archived record.
const SchemaVersion = 1

// Record is the wire form of one archived result.
type Record struct {
	ID            string  `json:"id"`
	JobID         string  `json:"job_id"`
	A             int     `json:"a"`
	B             int     `json:"b"`
	Operation     string  `json:"operation"`
	Result        *int    `json:"result"`
	ProcessedBy   string  `json:"processed_by"`
	ProcessedAt   string  `json:"processed_at"`
	DurationMS    int     `json:"duration_ms"`
	Status        string  `json:"status"`
	Error         *string `json:"error"`
	SchemaVersion int     `json:"schema_version"`
}

// NewRecord converts a domain result into its archive form.
func NewRecord(res *domain.Result) Record {
	return Record{
		ID:            res.ID,
		JobID:         res.JobID,
		A:             res.A,
		B:             res.B,
		Operation:     res.Operation,
		Result:        res.Value,
		ProcessedBy:   res.ProcessedBy,
		ProcessedAt:   res.ProcessedAt.UTC().Format(time.RFC3339Nano),
		DurationMS:    res.DurationMS,
		Status:        string(res.Status),
		Error:         res.Error,
		SchemaVersion: SchemaVersion,
	}
}

// Sink is the append-only archive interface.
type Sink interface {
	// Append durably writes one record. Implementations partition by the
	// record's UTC calendar day.
	Append(ctx context.Context, rec Record) error
}
