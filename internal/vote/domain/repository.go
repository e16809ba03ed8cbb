package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// FindVotable reports whether a decision is eligible for voting: it
	// must exist, be public, and be resolved.
	FindVotable(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) (bool, error)
	Upsert(ctx context.Context, db *gorm.DB, vote *DecisionVote) error
	CountByDecision(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) (Counts, error)
	CountByDecisionIDs(ctx context.Context, db *gorm.DB, decisionIDs []snowflake.ID) (map[snowflake.ID]Counts, error)
}
