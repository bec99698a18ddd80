package handler

import (
	"time"

	"github.com/rezkam/flotilla/internal/domain"
)

// jobPayload is the wire representation of a job.
type jobPayload struct {
	ID         string     `json:"id"`
	A          int        `json:"a"`
	B          int        `json:"b"`
	Operation  string     `json:"operation"`
	Status     string     `json:"status"`
	ClaimedBy  *string    `json:"claimed_by"`
	CreatedAt  time.Time  `json:"created_at"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Attempts   int        `json:"attempts"`
	Error      *string    `json:"error,omitempty"`
	Version    int        `json:"version"`
}

func toJobPayload(j *domain.Job) *jobPayload {
	if j == nil {
		return nil
	}
	return &jobPayload{
		ID:         j.ID,
		A:          j.A,
		B:          j.B,
		Operation:  j.Operation,
		Status:     string(j.Status),
		ClaimedBy:  j.ClaimedBy,
		CreatedAt:  j.CreatedAt,
		ClaimedAt:  j.ClaimedAt,
		StartedAt:  j.StartedAt,
		FinishedAt: j.FinishedAt,
		Attempts:   j.Attempts,
		Error:      j.Error,
		Version:    j.Version,
	}
}

func toJobPayloads(jobs []*domain.Job) []*jobPayload {
	out := make([]*jobPayload, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, toJobPayload(j))
	}
	return out
}

// botPayload is the wire representation of a bot. ComputedStatus is
// derived from heartbeat age at render time, never stored.
type botPayload struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	ComputedStatus    string     `json:"computed_status"`
	CurrentJobID      *string    `json:"current_job_id"`
	AssignedOperation *string    `json:"assigned_operation"`
	LastHeartbeatAt   time.Time  `json:"last_heartbeat_at"`
	CreatedAt         time.Time  `json:"created_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	HealthStatus      string     `json:"health_status"`
	StuckJobID        *string    `json:"stuck_job_id,omitempty"`
}

func toBotPayload(b *domain.Bot, now time.Time, downAfter time.Duration) *botPayload {
	return &botPayload{
		ID:                b.ID,
		Status:            string(b.Status),
		ComputedStatus:    string(b.ComputedStatus(now, downAfter)),
		CurrentJobID:      b.CurrentJobID,
		AssignedOperation: b.AssignedOperation,
		LastHeartbeatAt:   b.LastHeartbeatAt,
		CreatedAt:         b.CreatedAt,
		DeletedAt:         b.DeletedAt,
		HealthStatus:      string(b.HealthStatus),
		StuckJobID:        b.StuckJobID,
	}
}

func toBotPayloads(bots []*domain.Bot, now time.Time, downAfter time.Duration) []*botPayload {
	out := make([]*botPayload, 0, len(bots))
	for _, b := range bots {
		out = append(out, toBotPayload(b, now, downAfter))
	}
	return out
}
