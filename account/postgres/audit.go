package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/hackforge/hackauth/internal/audit"
)

// AuditSink persists audit events to auth_audit_log. Write failures are
// logged and the event is dropped.
type AuditSink struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

func NewAuditSink(db *sql.DB, logger logrus.FieldLogger) *AuditSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditSink{db: db, logger: logger}
}

func (s *AuditSink) Emit(ctx context.Context, event audit.Event) {
	meta := []byte("{}")
	if len(event.Metadata) > 0 {
		if b, err := json.Marshal(event.Metadata); err == nil {
			meta = b
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_audit_log
       (occurred_at, event_type, account_id, session_id, ip, user_agent, device, success, error, metadata)
       VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Timestamp, event.EventType, event.AccountID, event.SessionID, event.IP,
		event.UserAgent, event.Device, event.Success, event.Error, string(meta))
	if err != nil {
		s.logger.WithError(err).WithField("event_type", event.EventType).Warn("audit write failed")
	}
}
