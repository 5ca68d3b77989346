package bus

import (
	"context"

	"github.com/yungbote/huddle-backend/internal/realtime"
)

// Bus fans realtime messages out across API instances. Every instance
// publishes to the bus and forwards what it receives into its local hub.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
