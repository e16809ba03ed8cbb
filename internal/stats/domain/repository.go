package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Aggregate counts the owner's decisions by lifecycle state straight
	// from the decisions table. SuccessRate is left for the caller.
	Aggregate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*UserDecisionStats, error)
	Upsert(ctx context.Context, db *gorm.DB, stats *UserDecisionStats) error
	FindByUserID(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*UserDecisionStats, error)
}
