package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType identifies who performed an audited action.
type ActorType string

const (
	ActorTypeSystem ActorType = "system"
	ActorTypeUser   ActorType = "user"
	ActorTypeAPIKey ActorType = "api_key"
)

// AuditLog is an append-only record of a sensitive operation: premium
// grants, privacy changes, API key lifecycle events.
type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action" gorm:"index:idx_audit_logs_action"`
	EntityType string            `json:"entity_type"`
	EntityID   *string           `json:"entity_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	IPAddress  *string           `json:"ip_address,omitempty"`
	UserAgent  *string           `json:"user_agent,omitempty"`
	CreatedAt  time.Time         `json:"created_at" gorm:"index:idx_audit_logs_created,sort:desc"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// AuditCursor is the decoded keyset position for List.
type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

// ListFilter narrows a List query. Zero values mean "no filter".
type ListFilter struct {
	Action     string
	EntityType string
	EntityID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
