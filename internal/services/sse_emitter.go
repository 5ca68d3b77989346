package services

import (
	"context"

	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/logger"
	"github.com/yungbote/huddle-backend/internal/realtime"
	"github.com/yungbote/huddle-backend/internal/realtime/bus"
)

type SSEEmitter interface {
	Emit(ctx context.Context, msg realtime.SSEMessage)
}

// HubEmitter delivers to clients connected to this instance only.
type HubEmitter struct{ Hub *realtime.SSEHub }

func (e *HubEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Hub == nil {
		return
	}
	e.Hub.Deliver(msg)
}

// BusEmitter publishes to the cross-instance bus. Every instance, this one
// included, delivers to its hub from the bus forwarder. A failed publish
// falls back to local delivery.
type BusEmitter struct {
	Bus      bus.Bus
	Fallback *realtime.SSEHub
	Log      *logger.Logger
	Metrics  *observability.Metrics
}

func (e *BusEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	if e == nil || e.Bus == nil {
		return
	}
	err := e.Bus.Publish(ctx, msg)
	e.Metrics.IncRealtimePublish(err)
	if err == nil {
		return
	}
	if e.Log != nil {
		e.Log.Warn("Realtime publish failed; delivering locally", "channel", msg.Channel, "event", msg.Event, "error", err)
	}
	if e.Fallback != nil {
		e.Fallback.Deliver(msg)
	}
}
