// Package domain contains the decision record model and lifecycle contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// PrivacyLevel controls who may see a decision.
type PrivacyLevel string

const (
	PrivacyPublic    PrivacyLevel = "public"
	PrivacyFollowers PrivacyLevel = "followers"
	PrivacyPrivate   PrivacyLevel = "private"
)

func (p PrivacyLevel) Valid() bool {
	switch p {
	case PrivacyPublic, PrivacyFollowers, PrivacyPrivate:
		return true
	}
	return false
}

// ResolutionState represents lifecycle states for a decision.
type ResolutionState string

const (
	ResolutionUnresolved ResolutionState = "unresolved"
	ResolutionResolved   ResolutionState = "resolved"
)

// Alternative-list bounds enforced at the storage boundary. The generator
// aims for four; anything outside this range is a corrupt record.
const (
	MinAlternatives = 2
	MaxAlternatives = 6
)

// Decision captures one decision episode: the dilemma text, the generated
// alternatives, and (once resolved) the randomly selected outcome.
//
// Text and Alternatives are immutable after creation. SelectedIndex is set
// exactly once when the record flips to resolved. Implemented stays nil
// until the owner annotates the outcome and may only be set while resolved.
type Decision struct {
	ID              snowflake.ID                `gorm:"primaryKey" json:"id"`
	OwnerID         snowflake.ID                `gorm:"column:owner_id;not null;index:idx_decisions_owner_created" json:"owner_id"`
	Text            string                      `gorm:"type:text;not null" json:"text"`
	Alternatives    datatypes.JSONSlice[string] `gorm:"type:jsonb;not null" json:"alternatives"`
	PrivacyLevel    PrivacyLevel                `gorm:"column:privacy_level;type:text;not null;default:private" json:"privacy_level"`
	ResolutionState ResolutionState             `gorm:"column:resolution_state;type:text;not null;default:unresolved" json:"resolution_state"`
	SelectedIndex   *int                        `gorm:"column:selected_index" json:"selected_index,omitempty"`
	Implemented     *bool                       `gorm:"" json:"implemented,omitempty"`
	ShareSlug       *string                     `gorm:"column:share_slug;type:text;uniqueIndex" json:"share_slug,omitempty"`
	ResolvedAt      *time.Time                  `gorm:"" json:"resolved_at,omitempty"`
	CreatedAt       time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP;index:idx_decisions_owner_created,sort:desc" json:"created_at"`
	UpdatedAt       time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Decision) TableName() string { return "decisions" }

// Resolved reports whether the decision already carries a selected outcome.
func (d *Decision) Resolved() bool { return d.ResolutionState == ResolutionResolved }

// SelectedText returns the alternative picked at resolution, or "" while
// unresolved.
func (d *Decision) SelectedText() string {
	if d.SelectedIndex == nil {
		return ""
	}
	idx := *d.SelectedIndex
	if idx < 0 || idx >= len(d.Alternatives) {
		return ""
	}
	return d.Alternatives[idx]
}
