package ctxutil

import "context"

type traceDataKey struct{}

// TraceData travels with a request or job. The chat fields are filled in by
// the HTTP layer and read back by the request log.
type TraceData struct {
	TraceID   string
	RequestID string

	ConversationID string
	IdempotencyKey string
	// Replayed is set when a write was answered from an idempotency record.
	Replayed bool
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// MarkReplayed flags the current request as an idempotent replay. No-op
// outside a traced request.
func MarkReplayed(ctx context.Context) {
	if td := GetTraceData(ctx); td != nil {
		td.Replayed = true
	}
}
