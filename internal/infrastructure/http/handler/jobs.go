package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	jobapp "github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/domain"
	"github.com/rezkam/flotilla/internal/infrastructure/http/response"
)

// PopulateJobs creates a batch of pending jobs with random operands.
// POST /jobs/populate (admin)
func (h *CoordinatorHandler) PopulateJobs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchSize int    `json:"batch_size"`
		Operation string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	ids, err := h.jobs.Populate(r.Context(), req.BatchSize, req.Operation)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	response.Created(w, map[string][]string{"created": ids})
}

// ListJobs lists jobs ordered by status priority then recency.
// GET /jobs?status=&limit=&offset=
func (h *CoordinatorHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	params := jobapp.ListParams{
		Status: domain.JobStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "limit must be an integer")
			return
		}
		params.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			response.BadRequest(w, "offset must be an integer")
			return
		}
		params.Offset = n
	}

	jobs, err := h.jobs.List(r.Context(), params)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toJobPayloads(jobs))
}

// GetJob retrieves a single job.
// GET /jobs/{id}
func (h *CoordinatorHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toJobPayload(j))
}

// ClaimJob atomically assigns the oldest matching pending job to the
// bot. Responds with the claimed job, or a JSON null when no work is
// available so callers can poll.
// POST /jobs/claim
func (h *CoordinatorHandler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID string `json:"bot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	j, err := h.jobs.Claim(r.Context(), req.BotID)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toJobPayload(j))
}

// StartJob transitions a claimed job to processing.
// POST /jobs/{id}/start
func (h *CoordinatorHandler) StartJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID string `json:"bot_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	if err := h.jobs.Start(r.Context(), chi.URLParam(r, "id"), req.BotID); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// CompleteJob terminally succeeds a processing job.
// POST /jobs/{id}/complete
func (h *CoordinatorHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID      string `json:"bot_id"`
		Result     int    `json:"result"`
		DurationMS int    `json:"duration_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	if err := h.jobs.Complete(r.Context(), chi.URLParam(r, "id"), req.BotID, req.Result, req.DurationMS); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// FailJob terminally fails a processing job.
// POST /jobs/{id}/fail
func (h *CoordinatorHandler) FailJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BotID      string `json:"bot_id"`
		Error      string `json:"error"`
		DurationMS int    `json:"duration_ms"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}
	if req.Error == "" {
		response.BadRequest(w, "error text is required")
		return
	}

	if err := h.jobs.Fail(r.Context(), chi.URLParam(r, "id"), req.BotID, req.Error, req.DurationMS); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// ReleaseJob forces a claimed or processing job back to pending.
// POST /jobs/{id}/release (admin)
func (h *CoordinatorHandler) ReleaseJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// Body is optional for release.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "invalid JSON")
		return
	}

	jobID := chi.URLParam(r, "id")
	if err := h.jobs.Release(r.Context(), jobID, req.Reason); err != nil {
		slog.WarnContext(r.Context(), "release rejected", "job_id", jobID, "error", err)
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// ListOperations lists the registered operation names.
// GET /operations
func (h *CoordinatorHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	response.OK(w, map[string][]string{"names": h.operations.Names()})
}

// MetricsSummary reports job counts per status.
// GET /metrics/summary
func (h *CoordinatorHandler) MetricsSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobs.StatusCounts(r.Context())
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	response.OK(w, map[string]any{"jobs": byStatus})
}
