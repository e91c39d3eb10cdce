package ctxutil

import (
	"context"
	"time"
)

// приватные ключи, чтобы исключить коллизии
type key int

const (
	keyUserID key = iota
	keyRole
	keyRequestID
)

// WithUserID / UserID carry the authenticated user through service calls.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyUserID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, keyRole, role)
}

func Role(ctx context.Context) (string, bool) {
	v := ctx.Value(keyRole)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithRequestID / RequestID are set by the HTTP layer for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyRequestID, id)
}

func RequestID(ctx context.Context) (string, bool) {
	v := ctx.Value(keyRequestID)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

var (
	DefaultDBTimeout = 5 * time.Second
)

// WithDBTimeout: стандартный таймаут для БД, не продлевает дедлайн родителя.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		remain := time.Until(dl)
		if remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
