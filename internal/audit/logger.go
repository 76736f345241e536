// Package audit records one entry per API request, including the guard
// decision taken for it.
package audit

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/org/dealership/internal/clock"
	"github.com/org/dealership/internal/storage"
	"github.com/org/dealership/pkg/models"
)

// Writer persists audit entries.
type Writer interface {
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
	QueryAuditLog(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error)
}

// Logger writes structured audit entries.
type Logger struct {
	store Writer
	clock clock.Clock
}

// NewLogger creates an audit Logger.
func NewLogger(store Writer, clk clock.Clock) *Logger {
	if clk == nil {
		clk = clock.System()
	}
	return &Logger{store: store, clock: clk}
}

// LogRequest records an API request to the audit log. Write failures are
// logged and never reach the caller. Credentials and tokens must not be
// passed here.
func (l *Logger) LogRequest(ctx context.Context, entry *models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock.Now().UTC()
	}
	if err := l.store.WriteAuditEntry(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("request_id", entry.RequestID).Msg("writing audit entry")
	}
}

// Query retrieves paginated audit log entries.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	return l.store.QueryAuditLog(ctx, filter)
}
