package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	// List returns entries newest first. When filter.Limit is set it
	// fetches one extra row so callers can detect a next page.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
