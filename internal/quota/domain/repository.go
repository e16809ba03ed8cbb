package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert creates the ledger row, silently keeping an existing one.
	Insert(ctx context.Context, db *gorm.DB, state *QuotaState) error
	FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*QuotaState, error)
	// FindByUserIDForUpdate locks the row for the duration of the
	// surrounding transaction.
	FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*QuotaState, error)
	Update(ctx context.Context, db *gorm.DB, state *QuotaState) error
	SetPremium(ctx context.Context, db *gorm.DB, userID snowflake.ID, premium bool, updatedAt time.Time) (bool, error)
}
