package realtime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/huddle-backend/internal/platform/logger"
)

const defaultOutboundBuffer = 64

// HubHooks are optional callbacks for metrics.
type HubHooks struct {
	OnDrop    func(channel string)
	OnClients func(n int)
}

type SSEHub struct {
	mu            sync.RWMutex
	logger        *logger.Logger
	subscriptions map[string]map[*SSEClient]bool
	clients       map[*SSEClient]bool
	hooks         HubHooks
	buffer        int
	heartbeat     time.Duration
}

func NewSSEHub(log *logger.Logger) *SSEHub {
	return &SSEHub{
		logger:        log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*SSEClient]bool),
		clients:       make(map[*SSEClient]bool),
		buffer:        defaultOutboundBuffer,
		heartbeat:     15 * time.Second,
	}
}

func (hub *SSEHub) SetHooks(h HubHooks) {
	hub.mu.Lock()
	hub.hooks = h
	hub.mu.Unlock()
}

func (hub *SSEHub) NewSSEClient(userID uuid.UUID) *SSEClient {
	id := uuid.New()
	c := &SSEClient{
		ID:       id,
		UserID:   userID,
		Channels: make(map[string]bool),
		Outbound: make(chan SSEMessage, hub.buffer),
		done:     make(chan struct{}),
		Logger:   hub.logger.With("client_id", id),
	}
	hub.mu.Lock()
	hub.clients[c] = true
	n := len(hub.clients)
	onClients := hub.hooks.OnClients
	hub.mu.Unlock()
	if onClients != nil {
		onClients(n)
	}
	return c
}

func (hub *SSEHub) AddChannel(client *SSEClient, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" || client == nil {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if !hub.clients[client] {
		return
	}

	client.Channels[channel] = true
	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*SSEClient]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true

	hub.logger.Debug("SSE client subscribed", "client_id", client.ID, "channel", channel)
}

func (hub *SSEHub) RemoveChannel(client *SSEClient, channel string) {
	channel = strings.TrimSpace(channel)
	if channel == "" || client == nil {
		return
	}
	hub.mu.Lock()
	defer hub.mu.Unlock()

	delete(client.Channels, channel)
	hub.unsubscribeLocked(client, channel)
	hub.logger.Debug("SSE client unsubscribed from channel", "client_id", client.ID, "channel", channel)
}

func (hub *SSEHub) unsubscribeLocked(client *SSEClient, channel string) {
	if subMap, ok := hub.subscriptions[channel]; ok {
		delete(subMap, client)
		if len(subMap) == 0 {
			delete(hub.subscriptions, channel)
		}
	}
}

// IsSubscribed reports whether client currently listens on channel.
func (hub *SSEHub) IsSubscribed(client *SSEClient, channel string) bool {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return client != nil && client.Channels[channel]
}

// DropChannelForUser detaches userID's clients from channel once the user is
// no longer a member of the conversation behind it.
func (hub *SSEHub) DropChannelForUser(channel string, userID uuid.UUID) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for c := range hub.subscriptions[channel] {
		if c.UserID == userID {
			delete(c.Channels, channel)
			hub.unsubscribeLocked(c, channel)
		}
	}
}

// Broadcast delivers msg to every subscriber of its channel. Slow clients
// whose buffer is full miss the message.
func (hub *SSEHub) Broadcast(msg SSEMessage) {
	if msg.Channel == "" {
		return
	}
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for c := range hub.subscriptions[msg.Channel] {
		select {
		case c.Outbound <- msg:
		default:
			hub.logger.Warn("Dropping SSE message; outbound buffer full", "client_id", c.ID, "channel", msg.Channel)
			if hub.hooks.OnDrop != nil {
				hub.hooks.OnDrop(msg.Channel)
			}
		}
	}
}

// Deliver broadcasts msg and applies its side effects on local subscriptions.
// Removed participants stop receiving the conversation channel.
func (hub *SSEHub) Deliver(msg SSEMessage) {
	hub.Broadcast(msg)
	if msg.Event != SSEEventParticipantsRemoved {
		return
	}
	change, ok := membershipChangeOf(msg.Data)
	if !ok {
		return
	}
	channel := ConversationChannel(change.ConversationID)
	for _, uid := range change.UserIDs {
		hub.DropChannelForUser(channel, uid)
	}
}

func (hub *SSEHub) ClientCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.clients)
}

func (hub *SSEHub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *SSEClient) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(hub.heartbeat)
	defer heartbeat.Stop()

	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-ctx.Done():
			hub.logger.Debug("SSE client context done", "client_id", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-client.Outbound:
			if !ok {
				return
			}
			jsonBytes, err := json.Marshal(msg)
			if err != nil {
				hub.logger.Warn("Failed to marshal SSE message", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, jsonBytes)
			flusher.Flush()
		}
	}
}

// CloseClient detaches the client from every channel. Safe to call twice.
func (hub *SSEHub) CloseClient(client *SSEClient) {
	if client == nil {
		return
	}
	client.once.Do(func() {
		hub.mu.Lock()
		for ch := range client.Channels {
			hub.unsubscribeLocked(client, ch)
		}
		client.Channels = make(map[string]bool)
		delete(hub.clients, client)
		n := len(hub.clients)
		onClients := hub.hooks.OnClients
		close(client.done)
		close(client.Outbound)
		hub.mu.Unlock()
		if onClients != nil {
			onClients(n)
		}
		hub.logger.Debug("SSE client closed", "client_id", client.ID)
	})
}
