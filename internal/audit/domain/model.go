// Package domain holds the chat audit trail model.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Entry is one charge decision worth of audit context.
type Entry struct {
	CorrelationID  string
	Identity       string
	Mode           string
	Allowed        bool
	Reason         string
	Cost           int
	Remaining      int
	Degraded       bool
	Refused        bool
	QuestionLength int
	Metadata       map[string]any
}

// ChatAuditLog is the persisted form of an Entry.
type ChatAuditLog struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	CorrelationID  string            `gorm:"size:26;index"`
	Identity       string            `gorm:"size:255;index;not null"`
	Mode           string            `gorm:"size:16;not null"`
	Allowed        bool              `gorm:"not null"`
	Reason         *string           `gorm:"size:32"`
	Cost           int               `gorm:"not null"`
	Remaining      int               `gorm:"not null"`
	Degraded       bool              `gorm:"not null"`
	Refused        bool              `gorm:"not null"`
	QuestionLength int               `gorm:"not null"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;index"`
}

func (ChatAuditLog) TableName() string { return "chat_audit_logs" }

// Recorder persists entries without blocking or failing the request path.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}
