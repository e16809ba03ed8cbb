// Package domain contains community vote models for public decisions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// VoteType is the direction of a vote on a resolved public decision.
type VoteType string

const (
	VoteHelpful   VoteType = "helpful"
	VoteUnhelpful VoteType = "unhelpful"
)

func (v VoteType) Valid() bool {
	switch v {
	case VoteHelpful, VoteUnhelpful:
		return true
	}
	return false
}

// DecisionVote holds one user's vote on one decision. The composite unique
// index makes re-voting an upsert that switches the type instead of adding
// a second row.
type DecisionVote struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	DecisionID snowflake.ID `gorm:"column:decision_id;not null;uniqueIndex:idx_decision_votes_decision_user" json:"decision_id"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;uniqueIndex:idx_decision_votes_decision_user" json:"user_id"`
	VoteType   VoteType     `gorm:"column:vote_type;type:text;not null" json:"vote_type"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (DecisionVote) TableName() string { return "decision_votes" }
