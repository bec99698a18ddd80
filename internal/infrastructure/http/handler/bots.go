package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rezkam/flotilla/internal/infrastructure/http/response"
)

// RegisterBot creates or revives a bot. Idempotent on id.
// POST /bots/register
func (h *CoordinatorHandler) RegisterBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID                string  `json:"id"`
		AssignedOperation *string `json:"assigned_operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	b, err := h.bots.Register(r.Context(), req.ID, req.AssignedOperation)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toBotPayload(b, h.now().UTC(), h.bots.DownThreshold()))
}

// HeartbeatBot refreshes the bot's liveness timestamp.
// POST /bots/heartbeat
func (h *CoordinatorHandler) HeartbeatBot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}

	if err := h.bots.Heartbeat(r.Context(), req.ID); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// AssignBotOperation pins the bot to one operation, or clears the pin
// when the operation is empty or absent.
// POST /bots/{id}/assign-operation (admin)
func (h *CoordinatorHandler) AssignBotOperation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operation *string `json:"operation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid JSON")
		return
	}
	if req.Operation != nil && *req.Operation == "" {
		req.Operation = nil
	}

	b, err := h.bots.AssignOperation(r.Context(), chi.URLParam(r, "id"), req.Operation)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toBotPayload(b, h.now().UTC(), h.bots.DownThreshold()))
}

// DeleteBot retires a bot, releasing or failing any held job.
// DELETE /bots/{id} (admin)
func (h *CoordinatorHandler) DeleteBot(w http.ResponseWriter, r *http.Request) {
	if err := h.bots.SoftDelete(r.Context(), chi.URLParam(r, "id")); err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.Ack(w)
}

// ResetBot is the admin escape hatch for a wedged bot.
// POST /bots/{id}/reset (admin)
func (h *CoordinatorHandler) ResetBot(w http.ResponseWriter, r *http.Request) {
	b, err := h.bots.Reset(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toBotPayload(b, h.now().UTC(), h.bots.DownThreshold()))
}

// ListBots lists bots with their liveness-derived computed status.
// GET /bots?include_deleted=
func (h *CoordinatorHandler) ListBots(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	bots, err := h.bots.List(r.Context(), includeDeleted)
	if err != nil {
		response.FromDomainError(w, r, err)
		return
	}
	response.OK(w, toBotPayloads(bots, h.now().UTC(), h.bots.DownThreshold()))
}
