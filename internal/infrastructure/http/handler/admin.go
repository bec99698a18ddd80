package handler

import (
	"net/http"
	"time"

	"github.com/rezkam/flotilla/internal/application/monitor"
	"github.com/rezkam/flotilla/internal/infrastructure/http/response"
)

// RunCleanup triggers a retention cleanup run. With dry_run=true it only
// reports what would be removed.
// POST /admin/cleanup?dry_run= (admin)
func (h *CoordinatorHandler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"

	report, err := h.cleaner.RunOnce(r.Context(), dryRun)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, report)
}

// CleanupStatus reports recent cleanup runs and the next scheduled one.
// GET /admin/cleanup/status (admin)
func (h *CoordinatorHandler) CleanupStatus(w http.ResponseWriter, r *http.Request) {
	history := h.cleaner.History()
	if history == nil {
		history = []monitor.CleanupReport{}
	}

	var nextRun *time.Time
	if t := h.cleaner.NextRun(); !t.IsZero() {
		nextRun = &t
	}

	response.OK(w, map[string]any{
		"history":  history,
		"next_run": nextRun,
	})
}
