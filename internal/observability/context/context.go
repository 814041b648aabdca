// Package obscontext carries correlation identifiers through request contexts.
package obscontext

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "observability.request_id"
	userIDKey    contextKey = "observability.user_id"
	actorKey     contextKey = "observability.actor"
)

type actorInfo struct {
	Type string
	ID   string
}

// WithRequestID stores the request correlation id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request correlation id, or empty.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithUserID stores the authenticated user id in the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or empty.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(userIDKey).(string)
	return value
}

// WithActor stores the acting principal type and id in the context.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorInfo{
		Type: strings.TrimSpace(actorType),
		ID:   strings.TrimSpace(actorID),
	})
}

// ActorFromContext returns the acting principal type and id, or empties.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, _ := ctx.Value(actorKey).(actorInfo)
	return value.Type, value.ID
}
