// Package domain contains hashed service credentials for the internal API.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Role names the policy role a key acts under on the internal surface.
type Role string

const (
	// RoleAdmin may manage keys, read audit logs, and administer quota.
	RoleAdmin Role = "admin"
	// RoleBilling may flip premium plans and read quota status only.
	RoleBilling Role = "billing"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleBilling:
		return true
	}
	return false
}

// APIKey stores hashed API credentials. The raw secret is shown once at
// creation and only its sha256 lands here.
type APIKey struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	KeyID            string       `gorm:"column:key_id;type:text;not null;uniqueIndex"`
	Name             string       `gorm:"type:text;not null"`
	Role             Role         `gorm:"type:text;not null"`
	KeyHash          string       `gorm:"column:key_hash;type:text;not null;index"`
	IsActive         bool         `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LastUsedAt       *time.Time   `gorm:"column:last_used_at"`
	ExpiresAt        *time.Time   `gorm:"column:expires_at"`
	RotatedFromKeyID *string      `gorm:"column:rotated_from_key_id;type:text"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "api_keys" }
