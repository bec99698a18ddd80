package domain

import "time"

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusClaimed    JobStatus = "claimed"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSucceeded  JobStatus = "succeeded"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatuses lists every valid job status.
func JobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending,
		JobStatusClaimed,
		JobStatusProcessing,
		JobStatusSucceeded,
		JobStatusFailed,
	}
}

// IsValid reports whether s is a known job status.
func (s JobStatus) IsValid() bool {
	switch s {
	case JobStatusPending, JobStatusClaimed, JobStatusProcessing, JobStatusSucceeded, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether s is a terminal status.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed
}

// Job is a single unit of work: two operands and an operation name.
//
// The status/claimed_by pairing is enforced by the store:
// pending jobs have no claimant, non-pending jobs always do.
type Job struct {
	ID         string
	A          int
	B          int
	Operation  string
	Status     JobStatus
	ClaimedBy  *string
	CreatedAt  time.Time
	ClaimedAt  *time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Attempts   int
	Error      *string
	Version    int
}

// ClaimedByBot reports whether botID currently holds the job.
func (j *Job) ClaimedByBot(botID string) bool {
	return j.ClaimedBy != nil && *j.ClaimedBy == botID
}
