package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/huddle-backend/internal/http"
	httpH "github.com/yungbote/huddle-backend/internal/http/handlers"
	httpMW "github.com/yungbote/huddle-backend/internal/http/middleware"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
	"github.com/yungbote/huddle-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health       *httpH.HealthHandler
	Conversation *httpH.ConversationHandler
	Message      *httpH.MessageHandler
	Group        *httpH.GroupHandler
	User         *httpH.UserHandler
	Attachment   *httpH.AttachmentHandler
	Realtime     *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, cfg Config, services Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:       httpH.NewHealthHandler(db),
		Conversation: httpH.NewConversationHandler(services.Chat, services.Typing),
		Message:      httpH.NewMessageHandler(services.Chat),
		Group:        httpH.NewGroupHandler(services.Groups),
		User:         httpH.NewUserHandler(services.Chat, services.Presence),
		Attachment:   httpH.NewAttachmentHandler(services.Attachments),
		Realtime:     httpH.NewRealtimeHandler(log, hub, services.Realtime, cfg.AllowedOrigins),
	}
}

func wireMiddleware(log *logger.Logger, services Services) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, services.Auth),
	}
}

func routerConfig(log *logger.Logger, cfg Config, metrics *observability.Metrics, services Services, handlers Handlers, middleware Middleware) http.RouterConfig {
	rc := http.RouterConfig{
		Log:                 log,
		Metrics:             metrics,
		ServiceName:         cfg.ServiceName,
		TracingEnabled:      cfg.Tracing.Enabled,
		AllowedOrigins:      cfg.AllowedOrigins,
		AuthMiddleware:      middleware.Auth,
		Presence:            services.Presence,
		ConversationHandler: handlers.Conversation,
		MessageHandler:      handlers.Message,
		GroupHandler:        handlers.Group,
		UserHandler:         handlers.User,
		AttachmentHandler:   handlers.Attachment,
		RealtimeHandler:     handlers.Realtime,
		HealthHandler:       handlers.Health,
	}
	if storage.Mode(cfg.StorageMode) == storage.ModeLocal {
		rc.LocalFilesDir = cfg.LocalStorageDir
		rc.LocalFilesPath = cfg.PublicFilesURL
	}
	return rc
}
