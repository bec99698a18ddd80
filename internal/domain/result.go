package domain

import "time"

// ResultStatus is the terminal outcome recorded for one attempt.
type ResultStatus string

const (
	ResultStatusSucceeded ResultStatus = "succeeded"
	ResultStatusFailed    ResultStatus = "failed"
)

// Result is an immutable record of one terminal job attempt. It is written
// once per terminal transition and mirrored to the datalake sink.
type Result struct {
	ID          string
	JobID       string
	A           int
	B           int
	Operation   string
	Value       *int
	ProcessedBy string
	ProcessedAt time.Time
	DurationMS  int
	Status      ResultStatus
	Error       *string
}
