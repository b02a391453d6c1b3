package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/civicworks/capital-triage/internal/models"
	"go.uber.org/zap"
)

// AuditRepository appends to the audit log. The log is append-only; there is
// deliberately no update or delete operation.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) *AuditRepository {
	return &AuditRepository{db: db, logger: logger}
}

// Log appends an audit event. The payload is marshaled to JSON; a marshal
// failure is logged and the event recorded with an empty payload rather than
// losing the event.
func (r *AuditRepository) Log(eventType, actor string, payload any) error {
	payloadJSON := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			r.logger.Warn("Failed to marshal audit payload",
				zap.String("event_type", eventType), zap.Error(err))
		} else {
			payloadJSON = string(b)
		}
	}

	query := "INSERT INTO audit_log (event_type, actor, payload) VALUES (?, ?, ?)"
	if _, err := r.db.Exec(query, eventType, actor, payloadJSON); err != nil {
		r.logger.Error("Failed to write audit event",
			zap.String("event_type", eventType), zap.Error(err))
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// GetRecent returns the most recent audit events, newest first.
func (r *AuditRepository) GetRecent(limit int) ([]*models.AuditEvent, error) {
	query := `
		SELECT log_id, event_type, actor, payload, created_at
		FROM audit_log
		ORDER BY log_id DESC
		LIMIT ?
	`
	rows, err := r.db.Query(query, limit)
	if err != nil {
		r.logger.Error("Failed to list audit events", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	var events []*models.AuditEvent
	for rows.Next() {
		var e models.AuditEvent
		var actor, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &actor, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Actor = actor.String
		e.Payload = payload.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

// CountByType returns the number of audit events of the given type.
func (r *AuditRepository) CountByType(eventType string) (int, error) {
	var count int
	err := r.db.QueryRow(
		"SELECT COUNT(1) FROM audit_log WHERE event_type = ?", eventType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}
