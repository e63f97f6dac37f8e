package webhook

import (
	"github.com/redis/go-redis/v9"

	apphttp "garagecall_backend/internal/http"
	"garagecall_backend/platform/config"
	"garagecall_backend/platform/logger"
)

// Module is the webhook intake module implementing http.Module.
type Module struct {
	handler *Handler
	secret  string
}

// NewModule creates and initializes the webhook module. redisClient may be
// nil; event deduplication is then skipped.
func NewModule(cfg config.VoiceConfig, processor EventProcessor, redisClient *redis.Client, log *logger.Logger) *Module {
	return &Module{
		handler: NewHandler(processor, NewDeduper(redisClient, log), log),
		secret:  cfg.GetWebhookSecret(),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the webhook route. The endpoint is public but
// shared-secret authenticated; it never goes through JWT auth.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(SharedSecretMiddleware(m.secret))
	group.POST("/voice", m.handler.HandleVoiceEvent)
}
