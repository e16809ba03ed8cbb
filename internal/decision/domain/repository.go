package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, decision *Decision) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Decision, error)
	FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*Decision, error)
	// MarkResolved flips an unresolved decision to resolved and stores the
	// selected index. It reports whether this call won the transition; a
	// false return means another resolve got there first.
	MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, selectedIndex int, at time.Time) (bool, error)
	// SetImplemented annotates the outcome. The update is guarded on the
	// resolved state and reports whether a row was written.
	SetImplemented(ctx context.Context, db *gorm.DB, id snowflake.ID, implemented bool, at time.Time) (bool, error)
	// UpdatePrivacy changes the privacy level of a still-unresolved decision
	// and assigns the share slug when one is supplied and none exists yet.
	UpdatePrivacy(ctx context.Context, db *gorm.DB, id snowflake.ID, level PrivacyLevel, shareSlug *string, at time.Time) (bool, error)
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*Decision, error)
	ListPublicResolved(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*Decision, error)
}
