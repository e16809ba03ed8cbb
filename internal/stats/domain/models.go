// Package domain contains derived per-user decision statistics.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserDecisionStats is a materialized aggregate over a user's decisions.
// It is recomputed from the decisions table rather than incremented in
// place, so replaying an annotation never drifts the counters.
type UserDecisionStats struct {
	UserID           snowflake.ID `gorm:"primaryKey;column:user_id" json:"user_id"`
	DecisionsTotal   int          `gorm:"not null;default:0" json:"decisions_total"`
	ResolvedTotal    int          `gorm:"not null;default:0" json:"resolved_total"`
	ImplementedTotal int          `gorm:"not null;default:0" json:"implemented_total"`
	// SuccessRate is the implemented share of all decisions as a whole
	// percentage, truncated.
	SuccessRate int       `gorm:"not null;default:0" json:"success_rate"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (UserDecisionStats) TableName() string { return "user_decision_stats" }
