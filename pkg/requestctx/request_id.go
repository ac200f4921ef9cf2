package requestctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// HeaderRequestID carries the request id on requests and responses.
const HeaderRequestID = "X-Request-ID"

// GetRequestID returns the request ID from context.
func GetRequestID(ctx context.Context) string {
	val, _ := ctx.Value(requestIDKey).(string)
	return val
}

// SetRequestID sets the request ID in the context.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// NormalizeRequestID keeps id when it is a valid UUID, otherwise returns a new one.
func NormalizeRequestID(id string) string {
	if _, err := uuid.Parse(id); err != nil || id == "" {
		return uuid.NewString()
	}
	return id
}
