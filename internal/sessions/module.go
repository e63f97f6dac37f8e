// Package sessions provides the quote session bounded context module.
package sessions

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"garagecall_backend/internal/events"
	apphttp "garagecall_backend/internal/http"
	"garagecall_backend/internal/sessions/handler"
	"garagecall_backend/internal/sessions/repository"
	"garagecall_backend/internal/sessions/service"
	"garagecall_backend/platform/logger"
	"garagecall_backend/platform/validator"
)

// Module is the sessions bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	repo    repository.SessionRepository
}

// NewModule creates and initializes the sessions module.
func NewModule(pool *pgxpool.Pool, analyzer service.DamageAnalyzer, dispatcher service.CallDispatcher, evaluator service.CompletionEvaluator, enqueuer service.WorkflowEnqueuer, bus events.Bus, val *validator.Validator, log *logger.Logger) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, analyzer, dispatcher, evaluator, enqueuer, bus, log)
	h := handler.New(svc, val)

	return &Module{
		handler: h,
		service: svc,
		repo:    repo,
	}
}

// SetCompletionEvaluator injects the completion evaluator once the call
// aggregator has been constructed (it needs this module's repository).
func (m *Module) SetCompletionEvaluator(evaluator service.CompletionEvaluator) {
	m.service.SetCompletionEvaluator(evaluator)
}

// SetShopDirectory injects the demo shop directory so zero-shop sessions
// are prefilled in demo mode.
func (m *Module) SetShopDirectory(dir service.ShopDirectory) {
	m.service.SetShopDirectory(dir)
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "sessions"
}

// Service returns the service layer for the worker entrypoint.
func (m *Module) Service() *service.Service {
	return m.service
}

// Repository returns the repository for cross-module wiring.
func (m *Module) Repository() repository.SessionRepository {
	return m.repo
}

// RegisterRoutes mounts session routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/sessions")
	group.POST("", m.handler.Create)
	group.GET("", m.handler.List)
	group.GET("/:id", m.handler.Get)
	group.POST("/:id/start", m.handler.Start)
	group.GET("/:id/report", m.handler.GetReport)
}
