package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/vote/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindVotable(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) (bool, error) {
	var row struct {
		ID snowflake.ID
	}
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM decisions
		 WHERE id = ? AND privacy_level = 'public' AND resolution_state = 'resolved'`,
		decisionID,
	).Scan(&row).Error
	if err != nil {
		return false, err
	}
	return row.ID != 0, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, vote *domain.DecisionVote) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "decision_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"vote_type", "updated_at"}),
	}).Create(vote).Error
}

func (r *repo) CountByDecision(ctx context.Context, db *gorm.DB, decisionID snowflake.ID) (domain.Counts, error) {
	var row struct {
		Helpful   int64
		Unhelpful int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT
		   COALESCE(SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END), 0) AS helpful,
		   COALESCE(SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END), 0) AS unhelpful
		 FROM decision_votes WHERE decision_id = ?`,
		domain.VoteHelpful,
		domain.VoteUnhelpful,
		decisionID,
	).Scan(&row).Error
	if err != nil {
		return domain.Counts{}, err
	}
	return domain.Counts{
		Helpful:   row.Helpful,
		Unhelpful: row.Unhelpful,
		Total:     row.Helpful + row.Unhelpful,
	}, nil
}

func (r *repo) CountByDecisionIDs(ctx context.Context, db *gorm.DB, decisionIDs []snowflake.ID) (map[snowflake.ID]domain.Counts, error) {
	counts := make(map[snowflake.ID]domain.Counts, len(decisionIDs))
	if len(decisionIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		DecisionID snowflake.ID
		Helpful    int64
		Unhelpful  int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT decision_id,
		   COALESCE(SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END), 0) AS helpful,
		   COALESCE(SUM(CASE WHEN vote_type = ? THEN 1 ELSE 0 END), 0) AS unhelpful
		 FROM decision_votes
		 WHERE decision_id IN ?
		 GROUP BY decision_id`,
		domain.VoteHelpful,
		domain.VoteUnhelpful,
		decisionIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.DecisionID] = domain.Counts{
			Helpful:   row.Helpful,
			Unhelpful: row.Unhelpful,
			Total:     row.Helpful + row.Unhelpful,
		}
	}
	return counts, nil
}
