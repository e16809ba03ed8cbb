package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/decision/domain"
	"github.com/zarver/zarver/pkg/db/option"
	"github.com/zarver/zarver/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, decision *domain.Decision) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO decisions (id, owner_id, text, alternatives, privacy_level, resolution_state, selected_index, implemented, share_slug, resolved_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.ID,
		decision.OwnerID,
		decision.Text,
		decision.Alternatives,
		decision.PrivacyLevel,
		decision.ResolutionState,
		decision.SelectedIndex,
		decision.Implemented,
		decision.ShareSlug,
		decision.ResolvedAt,
		decision.CreatedAt,
		decision.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Decision, error) {
	var decision domain.Decision
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, text, alternatives, privacy_level, resolution_state, selected_index, implemented, share_slug, resolved_at, created_at, updated_at
		 FROM decisions WHERE id = ?`,
		id,
	).Scan(&decision).Error
	if err != nil {
		return nil, err
	}
	if decision.ID == 0 {
		return nil, nil
	}
	return &decision, nil
}

func (r *repo) FindBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Decision, error) {
	var decision domain.Decision
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_id, text, alternatives, privacy_level, resolution_state, selected_index, implemented, share_slug, resolved_at, created_at, updated_at
		 FROM decisions WHERE share_slug = ?`,
		slug,
	).Scan(&decision).Error
	if err != nil {
		return nil, err
	}
	if decision.ID == 0 {
		return nil, nil
	}
	return &decision, nil
}

// MarkResolved is the single compare-and-set that makes resolution
// exactly-once: the state predicate in the WHERE clause loses against any
// concurrent resolve that committed first.
func (r *repo) MarkResolved(ctx context.Context, db *gorm.DB, id snowflake.ID, selectedIndex int, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE decisions
		 SET resolution_state = ?, selected_index = ?, resolved_at = ?, updated_at = ?
		 WHERE id = ? AND resolution_state = ?`,
		domain.ResolutionResolved,
		selectedIndex,
		at,
		at,
		id,
		domain.ResolutionUnresolved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetImplemented(ctx context.Context, db *gorm.DB, id snowflake.ID, implemented bool, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE decisions SET implemented = ?, updated_at = ? WHERE id = ? AND resolution_state = ?`,
		implemented,
		at,
		id,
		domain.ResolutionResolved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) UpdatePrivacy(ctx context.Context, db *gorm.DB, id snowflake.ID, level domain.PrivacyLevel, shareSlug *string, at time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE decisions
		 SET privacy_level = ?, share_slug = COALESCE(share_slug, ?), updated_at = ?
		 WHERE id = ? AND resolution_state = ?`,
		level,
		shareSlug,
		at,
		id,
		domain.ResolutionUnresolved,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID snowflake.ID, page pagination.Pagination) ([]*domain.Decision, error) {
	var decisions []*domain.Decision
	stmt := db.WithContext(ctx).
		Model(&domain.Decision{}).
		Where("owner_id = ?", ownerID)
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}

func (r *repo) ListPublicResolved(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.Decision, error) {
	var decisions []*domain.Decision
	stmt := db.WithContext(ctx).
		Model(&domain.Decision{}).
		Where("privacy_level = ?", domain.PrivacyPublic).
		Where("resolution_state = ?", domain.ResolutionResolved)
	stmt = option.ApplyPagination(page).Apply(stmt)
	err := stmt.
		Order("created_at desc, id desc").
		Find(&decisions).Error
	if err != nil {
		return nil, err
	}
	return decisions, nil
}
