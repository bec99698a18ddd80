// Package handler adapts HTTP requests to application service calls.
// The API is plain JSON; routes are mounted directly on a chi router.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	jobapp "github.com/rezkam/flotilla/internal/application/job"
	"github.com/rezkam/flotilla/internal/application/monitor"
	"github.com/rezkam/flotilla/internal/domain"
	mw "github.com/rezkam/flotilla/internal/infrastructure/http/middleware"
)

// JobService is the slice of the job application service the API uses.
type JobService interface {
	Populate(ctx context.Context, batchSize int, operationName string) ([]string, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, params jobapp.ListParams) ([]*domain.Job, error)
	StatusCounts(ctx context.Context) (map[domain.JobStatus]int, error)
	Claim(ctx context.Context, botID string) (*domain.Job, error)
	Start(ctx context.Context, jobID, botID string) error
	Complete(ctx context.Context, jobID, botID string, result, durationMS int) error
	Fail(ctx context.Context, jobID, botID, errText string, durationMS int) error
	Release(ctx context.Context, jobID, reason string) error
}

// BotService is the slice of the bot application service the API uses.
type BotService interface {
	Register(ctx context.Context, id string, assignedOperation *string) (*domain.Bot, error)
	Heartbeat(ctx context.Context, id string) error
	AssignOperation(ctx context.Context, id string, op *string) (*domain.Bot, error)
	SoftDelete(ctx context.Context, id string) error
	Reset(ctx context.Context, id string) (*domain.Bot, error)
	List(ctx context.Context, includeDeleted bool) ([]*domain.Bot, error)
	DownThreshold() time.Duration
}

// Cleaner exposes the retention cleaner to the admin API.
type Cleaner interface {
	RunOnce(ctx context.Context, dryRun bool) (monitor.CleanupReport, error)
	History() []monitor.CleanupReport
	NextRun() time.Time
}

// OperationCatalog lists the registered operation names.
type OperationCatalog interface {
	Names() []string
}

// CoordinatorHandler serves the coordinator API.
type CoordinatorHandler struct {
	jobs       JobService
	bots       BotService
	operations OperationCatalog
	cleaner    Cleaner

	now func() time.Time
}

// NewCoordinatorHandler creates a new HTTP API handler.
func NewCoordinatorHandler(jobs JobService, bots BotService, operations OperationCatalog, cleaner Cleaner) *CoordinatorHandler {
	return &CoordinatorHandler{
		jobs:       jobs,
		bots:       bots,
		operations: operations,
		cleaner:    cleaner,
		now:        time.Now,
	}
}

// NewRouter mounts every API route. Admin routes are gated by the bearer
// token; with an empty token they answer 401. Both production code and
// tests use this function so behavior is identical.
func NewRouter(h *CoordinatorHandler, adminToken string) http.Handler {
	admin := mw.AdminAuth(adminToken)

	r := chi.NewRouter()

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.ListJobs)
		r.Post("/claim", h.ClaimJob)
		r.With(admin).Post("/populate", h.PopulateJobs)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetJob)
			r.Post("/start", h.StartJob)
			r.Post("/complete", h.CompleteJob)
			r.Post("/fail", h.FailJob)
			r.With(admin).Post("/release", h.ReleaseJob)
		})
	})

	r.Route("/bots", func(r chi.Router) {
		r.Get("/", h.ListBots)
		r.Post("/register", h.RegisterBot)
		r.Post("/heartbeat", h.HeartbeatBot)

		r.Route("/{id}", func(r chi.Router) {
			r.With(admin).Post("/assign-operation", h.AssignBotOperation)
			r.With(admin).Delete("/", h.DeleteBot)
			r.With(admin).Post("/reset", h.ResetBot)
		})
	})

	r.Get("/operations", h.ListOperations)
	r.Get("/metrics/summary", h.MetricsSummary)

	r.Route("/admin", func(r chi.Router) {
		r.Use(admin)
		r.Post("/cleanup", h.RunCleanup)
		r.Get("/cleanup/status", h.CleanupStatus)
	})

	return r
}
