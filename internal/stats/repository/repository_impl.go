package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/stats/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Aggregate(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*domain.UserDecisionStats, error) {
	var row struct {
		DecisionsTotal   int
		ResolvedTotal    int
		ImplementedTotal int
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COUNT(*) AS decisions_total,
		   COALESCE(SUM(CASE WHEN resolution_state = 'resolved' THEN 1 ELSE 0 END), 0) AS resolved_total,
		   COALESCE(SUM(CASE WHEN implemented = ? THEN 1 ELSE 0 END), 0) AS implemented_total
		 FROM decisions WHERE owner_id = ?`,
		true,
		ownerID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	return &domain.UserDecisionStats{
		UserID:           ownerID,
		DecisionsTotal:   row.DecisionsTotal,
		ResolvedTotal:    row.ResolvedTotal,
		ImplementedTotal: row.ImplementedTotal,
	}, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, stats *domain.UserDecisionStats) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"decisions_total", "resolved_total", "implemented_total", "success_rate", "updated_at"}),
	}).Create(stats).Error
}

func (r *repo) FindByUserID(ctx context.Context, db *gorm.DB, ownerID snowflake.ID) (*domain.UserDecisionStats, error) {
	var stats domain.UserDecisionStats
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, decisions_total, resolved_total, implemented_total, success_rate, created_at, updated_at
		 FROM user_decision_stats WHERE user_id = ?`,
		ownerID,
	).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	if stats.UserID == 0 {
		return nil, nil
	}
	return &stats, nil
}
