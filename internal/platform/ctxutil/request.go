package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type requestDataKey struct{}

// RequestData is the authenticated principal attached by the auth middleware.
// Only the HTTP layer reads it; services receive principal ids as arguments.
type RequestData struct {
	UserID    uuid.UUID
	SessionID uuid.UUID
	Name      string
}

func WithRequestData(ctx context.Context, rd *RequestData) context.Context {
	return context.WithValue(ctx, requestDataKey{}, rd)
}

func GetRequestData(ctx context.Context) *RequestData {
	if ctx == nil {
		return nil
	}
	if rd, ok := ctx.Value(requestDataKey{}).(*RequestData); ok {
		return rd
	}
	return nil
}

// Detached keeps trace data but drops cancellation, for work that outlives a request.
func Detached(ctx context.Context) context.Context {
	out := context.Background()
	if td := GetTraceData(ctx); td != nil {
		out = WithTraceData(out, td)
	}
	return out
}
