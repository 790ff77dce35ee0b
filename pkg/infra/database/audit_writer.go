package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/wardgate/wardgate/pkg/analytics"
)

// AuditEventRow is the persisted form of a security event.
type AuditEventRow struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)"`
	EventType   string    `gorm:"type:varchar(64);index"`
	ThreatLevel string    `gorm:"type:varchar(16)"`
	ClientID    string    `gorm:"type:varchar(128);index"`
	Path        string    `gorm:"type:varchar(512)"`
	Method      string    `gorm:"type:varchar(16)"`
	UserAgent   string    `gorm:"type:varchar(512)"`
	Details     string    `gorm:"type:text"`
	ActionTaken string    `gorm:"type:varchar(32)"`
	Timestamp   time.Time `gorm:"index"`
}

func (AuditEventRow) TableName() string {
	return "audit_events"
}

// AuditWriter persists security events to the audit table.
type AuditWriter struct {
	db *gorm.DB
}

func NewAuditWriter(db *DB) *AuditWriter {
	return &AuditWriter{db: db.DB}
}

func (w *AuditWriter) Write(ctx context.Context, event analytics.Event) error {
	row := AuditEventRow{
		ID:          event.ID,
		EventType:   string(event.Type),
		ThreatLevel: event.ThreatLevel.String(),
		ClientID:    event.ClientID,
		Path:        event.Path,
		Method:      event.Method,
		UserAgent:   event.UserAgent,
		Details:     event.Details,
		ActionTaken: event.ActionTaken,
		Timestamp:   event.Timestamp,
	}
	return w.db.WithContext(ctx).Create(&row).Error
}
