package api

import (
	"context"

	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/pkg/models"
)

type contextKey string

const (
	ctxKeySession     contextKey = "session"
	ctxKeyRequestID   contextKey = "request_id"
	ctxKeyRequestInfo contextKey = "request_info"
)

func withSession(ctx context.Context, s *models.Session) context.Context {
	return context.WithValue(ctx, ctxKeySession, s)
}

// SessionFromContext returns the verified session attached by the guard, or
// nil on exempt routes.
func SessionFromContext(ctx context.Context) *models.Session {
	s, _ := ctx.Value(ctxKeySession).(*models.Session)
	return s
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func requestIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// requestInfo is shared between the audit middleware, which owns it, and the
// guard, which records its decision there.
type requestInfo struct {
	decision auth.Decision
}

func withRequestInfo(ctx context.Context, info *requestInfo) context.Context {
	return context.WithValue(ctx, ctxKeyRequestInfo, info)
}

func requestInfoFromCtx(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(ctxKeyRequestInfo).(*requestInfo)
	return info
}
