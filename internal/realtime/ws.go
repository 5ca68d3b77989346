package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxFrame   = 8 * 1024
)

// WSFrame is a client-to-server websocket frame.
type WSFrame struct {
	Type           string    `json:"type"`
	Channel        string    `json:"channel,omitempty"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	IsTyping       bool      `json:"is_typing,omitempty"`
	Ref            string    `json:"ref,omitempty"`
}

// WSReply acknowledges a frame. Events are written as SSEMessage.
type WSReply struct {
	Type  string `json:"type"`
	Ref   string `json:"ref,omitempty"`
	Error string `json:"error,omitempty"`
}

// FrameHandler authorizes and executes client frames.
type FrameHandler interface {
	Subscribe(ctx context.Context, client *SSEClient, channel string) error
	Unsubscribe(ctx context.Context, client *SSEClient, channel string)
	Typing(ctx context.Context, client *SSEClient, conversationID uuid.UUID, isTyping bool) error
}

// ServeWS pumps hub messages to conn and dispatches frames read from it until
// either side closes. The caller owns CloseClient.
func (hub *SSEHub) ServeWS(ctx context.Context, conn *websocket.Conn, client *SSEClient, fh FrameHandler) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	replies := make(chan WSReply, 16)

	go hub.readFrames(ctx, cancel, conn, client, fh, replies)

	ping := time.NewTicker(wsPingPeriod)
	defer func() {
		ping.Stop()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
		_ = conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.done:
			return
		case rep := <-replies:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(rep); err != nil {
				return
			}
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(msg); err != nil {
				hub.logger.Debug("websocket write failed", "client_id", client.ID, "error", err)
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (hub *SSEHub) readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *SSEClient, fh FrameHandler, replies chan<- WSReply) {
	defer cancel()
	conn.SetReadLimit(wsMaxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hub.logger.Debug("websocket closed unexpectedly", "client_id", client.ID, "error", err)
			}
			return
		}
		var f WSFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			reply(ctx, replies, WSReply{Type: "error", Error: "malformed frame"})
			continue
		}
		var ferr error
		switch f.Type {
		case "subscribe":
			ferr = fh.Subscribe(ctx, client, f.Channel)
		case "unsubscribe":
			fh.Unsubscribe(ctx, client, f.Channel)
		case "typing":
			ferr = fh.Typing(ctx, client, f.ConversationID, f.IsTyping)
		case "ping":
		default:
			reply(ctx, replies, WSReply{Type: "error", Ref: f.Ref, Error: "unknown frame type"})
			continue
		}
		if ferr != nil {
			reply(ctx, replies, WSReply{Type: "error", Ref: f.Ref, Error: ferr.Error()})
			continue
		}
		reply(ctx, replies, WSReply{Type: "ack", Ref: f.Ref})
	}
}

func reply(ctx context.Context, replies chan<- WSReply, r WSReply) {
	select {
	case replies <- r:
	case <-ctx.Done():
	}
}
