// Package audit records administrative actions. Writes are best-effort: a failed insert is
// logged and spooled for replay, and never fails the action being audited.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturely/backend/internal/models"
)

const defaultWriteTimeout = 5 * time.Second

// Store persists audit entries. Insert must be idempotent on entry ID.
type Store interface {
	Insert(ctx context.Context, entry *models.AuditLogEntry) error
}

// Spool holds entries whose insert failed so a worker can replay them.
type Spool interface {
	EnqueueAudit(ctx context.Context, entry *models.AuditLogEntry) error
}

// Entry describes one action. Before and After are marshalled to JSON; nil stays null.
type Entry struct {
	ActorUserID uuid.UUID
	ActorEmail  string
	Action      string
	EntityType  string
	EntityID    string
	Before      any
	After       any
	IP          string
	UserAgent   string
}

// Logger writes audit entries.
type Logger struct {
	store   Store
	spool   Spool
	timeout time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewLogger creates an audit logger. spool may be nil, in which case failed writes are only logged.
func NewLogger(store Store, spool Spool, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{store: store, spool: spool, timeout: defaultWriteTimeout, now: time.Now, logger: logger}
}

// SetWriteTimeout overrides the per-write timeout.
func (l *Logger) SetWriteTimeout(d time.Duration) {
	if d > 0 {
		l.timeout = d
	}
}

// Record writes e. It never returns an error; failures are logged at warn level.
// The write is detached from ctx cancellation so an aborted request still gets audited.
func (l *Logger) Record(ctx context.Context, e Entry) {
	entry := &models.AuditLogEntry{
		ID:         uuid.New(),
		ActorEmail: e.ActorEmail,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Before:     l.marshal(e.Action, "before", e.Before),
		After:      l.marshal(e.Action, "after", e.After),
		IP:         e.IP,
		UserAgent:  e.UserAgent,
		CreatedAt:  l.now().UTC(),
	}
	if e.ActorUserID != uuid.Nil {
		actor := e.ActorUserID
		entry.ActorUserID = &actor
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	err := l.store.Insert(wctx, entry)
	if err == nil {
		return
	}
	l.logger.Warn("audit log failed",
		zap.Error(err),
		zap.String("action", entry.Action),
		zap.String("entity_id", entry.EntityID),
		zap.String("audit_id", entry.ID.String()),
	)
	if l.spool == nil {
		return
	}
	// wctx may already be spent if the insert timed out.
	sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer scancel()
	if err := l.spool.EnqueueAudit(sctx, entry); err != nil {
		l.logger.Warn("audit spool failed, entry dropped",
			zap.Error(err),
			zap.String("action", entry.Action),
			zap.String("audit_id", entry.ID.String()),
		)
	}
}

func (l *Logger) marshal(action, field string, v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		l.logger.Warn("audit snapshot not serializable", zap.Error(err), zap.String("action", action), zap.String("field", field))
		return nil
	}
	return raw
}
