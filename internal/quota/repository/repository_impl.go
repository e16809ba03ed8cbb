package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/quota/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, state *domain.QuotaState) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(state).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.QuotaState, error) {
	var state domain.QuotaState
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, premium, queries_used_today, quota_date, daily_limit, created_at, updated_at
		 FROM quota_states WHERE user_id = ?`,
		userID,
	).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.UserID == 0 {
		return nil, nil
	}
	return &state, nil
}

func (r *repo) FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.QuotaState, error) {
	query := `SELECT user_id, premium, queries_used_today, quota_date, daily_limit, created_at, updated_at
	 FROM quota_states WHERE user_id = ?`
	// sqlite serializes writers on its own and rejects FOR UPDATE.
	if !strings.EqualFold(db.Dialector.Name(), "sqlite") {
		query += " FOR UPDATE"
	}

	var state domain.QuotaState
	err := db.WithContext(ctx).Raw(query, userID).Scan(&state).Error
	if err != nil {
		return nil, err
	}
	if state.UserID == 0 {
		return nil, nil
	}
	return &state, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, state *domain.QuotaState) error {
	return db.WithContext(ctx).Exec(
		`UPDATE quota_states
		 SET premium = ?, queries_used_today = ?, quota_date = ?, daily_limit = ?, updated_at = ?
		 WHERE user_id = ?`,
		state.Premium,
		state.QueriesUsedToday,
		state.QuotaDate,
		state.DailyLimit,
		state.UpdatedAt,
		state.UserID,
	).Error
}

func (r *repo) SetPremium(ctx context.Context, db *gorm.DB, userID snowflake.ID, premium bool, updatedAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE quota_states SET premium = ?, updated_at = ? WHERE user_id = ?`,
		premium,
		updatedAt,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
