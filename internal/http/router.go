package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/huddle-backend/internal/http/handlers"
	httpMW "github.com/yungbote/huddle-backend/internal/http/middleware"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/services"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	TracingEnabled bool
	AllowedOrigins []string

	// LocalFilesDir is served at LocalFilesPath when attachments live on disk.
	LocalFilesDir  string
	LocalFilesPath string

	AuthMiddleware *httpMW.AuthMiddleware
	Presence       services.PresenceStore

	ConversationHandler *httpH.ConversationHandler
	MessageHandler      *httpH.MessageHandler
	GroupHandler        *httpH.GroupHandler
	UserHandler         *httpH.UserHandler
	AttachmentHandler   *httpH.AttachmentHandler
	RealtimeHandler     *httpH.RealtimeHandler
	HealthHandler       *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.AllowedOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}
	if cfg.LocalFilesDir != "" && strings.HasPrefix(cfg.LocalFilesPath, "/") {
		r.Static(cfg.LocalFilesPath, cfg.LocalFilesDir)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	protected.Use(httpMW.TrackPresence(cfg.Presence))

	// Conversations
	if h := cfg.ConversationHandler; h != nil {
		protected.GET("/conversations", h.ListInbox)
		protected.POST("/conversations/direct", h.GetOrCreateDirect)
		protected.GET("/conversations/:id", h.GetConversation)
		protected.GET("/conversations/:id/messages", h.ListMessages)
		protected.POST("/conversations/:id/messages", h.SendMessage)
		protected.DELETE("/conversations/:id/messages", h.ClearConversation)
		protected.POST("/conversations/:id/read", h.MarkAsRead)
		protected.POST("/conversations/:id/typing", h.Typing)
	}

	// Messages
	if h := cfg.MessageHandler; h != nil {
		protected.DELETE("/messages/:id", h.DeleteMessage)
		protected.POST("/messages/:id/favorite", h.ToggleFavorite)
		protected.POST("/messages/:id/reactions", h.ToggleReaction)
	}

	// Groups
	if h := cfg.GroupHandler; h != nil {
		protected.POST("/groups", h.CreateGroup)
		protected.PATCH("/groups/:id", h.UpdateGroup)
		protected.POST("/groups/:id/participants", h.AddParticipants)
		protected.DELETE("/groups/:id/participants/:userId", h.RemoveParticipant)
		protected.POST("/groups/:id/leave", h.LeaveGroup)
	}

	// Users
	if h := cfg.UserHandler; h != nil {
		protected.POST("/users/:id/messages", h.SendMessage)
		protected.GET("/users/:id/presence", h.Presence)
		protected.GET("/me/unread", h.UnreadCount)
	}

	if h := cfg.AttachmentHandler; h != nil {
		protected.POST("/attachments", h.Upload)
	}

	// Realtime (SSE + websocket)
	if h := cfg.RealtimeHandler; h != nil {
		protected.GET("/realtime/stream", h.SSEStream)
		protected.GET("/realtime/ws", h.WebSocket)
		protected.POST("/realtime/subscribe", h.Subscribe)
		protected.POST("/realtime/unsubscribe", h.Unsubscribe)
	}

	return r
}
