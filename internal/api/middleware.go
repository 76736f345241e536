package api

import (
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/org/dealership/internal/auth"
	"github.com/org/dealership/pkg/models"
)

// requestIDMiddleware attaches a UUID request ID to each request.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := withRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

// auditMiddleware records every request, its guard decision and its response
// code to the audit log. Guard rejections are persisted only when
// auditRejected is set.
func auditMiddleware(auditor AuditLogger, now func() time.Time, auditRejected bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			info := &requestInfo{}
			rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rr, r.WithContext(withRequestInfo(r.Context(), info)))
			elapsed := time.Since(start)

			entry := &models.AuditEntry{
				RequestID:      requestIDFromCtx(r.Context()),
				Timestamp:      now().UTC(),
				Method:         r.Method,
				Path:           r.URL.Path,
				Decision:       info.decision.State.String(),
				Reason:         info.decision.Reason,
				ResponseCode:   rr.statusCode,
				ResponseTimeMs: elapsed.Milliseconds(),
				ClientIP:       clientIP(r),
			}
			if sess := info.decision.Session; sess != nil {
				id := sess.ID
				entry.PrincipalID = &id
			}
			if auditRejected || info.decision.State != auth.StateRejected {
				auditor.LogRequest(r.Context(), entry)
			}

			log.Debug().
				Str("request_id", entry.RequestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rr.statusCode).
				Dur("duration", elapsed).
				Msg("request")
		})
	}
}

// clientIP returns the peer address without its port. Forwarding headers are
// only reflected here when RealIP rewrote RemoteAddr upstream.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
