package handlers

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/huddle-backend/internal/http/response"
	"github.com/yungbote/huddle-backend/internal/platform/ctxutil"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/realtime"
	"github.com/yungbote/huddle-backend/internal/services"
)

type RealtimeHandler struct {
	log      *logger.Logger
	hub      *realtime.SSEHub
	rt       services.RealtimeService
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SessionID
}

// NewRealtimeHandler accepts websocket upgrades from allowedOrigins only; an
// empty list accepts same-host requests.
func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, rt services.RealtimeService, allowedOrigins []string) *RealtimeHandler {
	h := &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		rt:      rt,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed[origin]
		}
	}
	return h
}

type channelReq struct {
	Channel string `json:"channel" validate:"required,max=200"`
}

func requestData(c *gin.Context) (*ctxutil.RequestData, bool) {
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("not authenticated"))
		return nil, false
	}
	if rd.SessionID == uuid.Nil {
		response.RespondError(c, http.StatusUnauthorized, "unauthorized", errors.New("missing session id"))
		return nil, false
	}
	return rd, true
}

// register makes client the session's stream, replacing any previous one.
func (h *RealtimeHandler) register(sessionID uuid.UUID, client *realtime.SSEClient) {
	h.mu.Lock()
	if existing, ok := h.clients[sessionID]; ok {
		h.hub.CloseClient(existing)
	}
	h.clients[sessionID] = client
	h.mu.Unlock()
	h.hub.AddChannel(client, realtime.UserChannel(client.UserID))
}

func (h *RealtimeHandler) unregister(sessionID uuid.UUID, client *realtime.SSEClient) {
	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
}

func (h *RealtimeHandler) sessionClient(sessionID uuid.UUID) *realtime.SSEClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[sessionID]
}

// GET /api/realtime/stream
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	rd, ok := requestData(c)
	if !ok {
		return
	}
	client := h.hub.NewSSEClient(rd.UserID)
	h.register(rd.SessionID, client)
	h.log.Debug("SSE stream open", "user_id", rd.UserID, "session_id", rd.SessionID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.unregister(rd.SessionID, client)
}

// GET /api/realtime/ws
func (h *RealtimeHandler) WebSocket(c *gin.Context) {
	rd, ok := requestData(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	client := h.hub.NewSSEClient(rd.UserID)
	h.register(rd.SessionID, client)
	h.log.Debug("websocket open", "user_id", rd.UserID, "session_id", rd.SessionID, "client_id", client.ID)

	h.hub.ServeWS(c.Request.Context(), conn, client, h.rt)

	h.unregister(rd.SessionID, client)
}

// POST /api/realtime/subscribe
func (h *RealtimeHandler) Subscribe(c *gin.Context) {
	rd, ok := requestData(c)
	if !ok {
		return
	}
	var req channelReq
	if !bindJSON(c, &req) {
		return
	}
	client := h.sessionClient(rd.SessionID)
	if client == nil {
		response.RespondError(c, http.StatusConflict, "no_stream", errors.New("no active realtime connection for this session"))
		return
	}
	if err := h.rt.Subscribe(c.Request.Context(), client, req.Channel); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "subscribed", "channel": req.Channel})
}

// POST /api/realtime/unsubscribe
func (h *RealtimeHandler) Unsubscribe(c *gin.Context) {
	rd, ok := requestData(c)
	if !ok {
		return
	}
	var req channelReq
	if !bindJSON(c, &req) {
		return
	}
	client := h.sessionClient(rd.SessionID)
	if client == nil {
		response.RespondError(c, http.StatusConflict, "no_stream", errors.New("no active realtime connection for this session"))
		return
	}
	h.rt.Unsubscribe(c.Request.Context(), client, req.Channel)
	response.RespondOK(c, gin.H{"message": "unsubscribed", "channel": req.Channel})
}
