// Package domain contains the per-user daily quota ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// QuotaState tracks one user's daily decision allowance. The counter is
// reset lazily: whoever observes a stale quota_date first rolls the row
// over to today before applying its own operation.
type QuotaState struct {
	UserID           snowflake.ID `gorm:"column:user_id;primaryKey"`
	Premium          bool         `gorm:"not null;default:false"`
	QueriesUsedToday int          `gorm:"column:queries_used_today;not null;default:0"`
	QuotaDate        time.Time    `gorm:"column:quota_date;type:date;not null"`
	DailyLimit       int          `gorm:"column:daily_limit;not null"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (QuotaState) TableName() string { return "quota_states" }
