package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/observability/metrics"
	"github.com/zarver/zarver/internal/stats/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("stats.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Recompute(ctx context.Context, ownerID snowflake.ID) (*domain.UserDecisionStats, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidUser
	}

	start := time.Now()
	agg, err := s.repo.Aggregate(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}

	if agg.DecisionsTotal > 0 {
		agg.SuccessRate = agg.ImplementedTotal * 100 / agg.DecisionsTotal
	}

	now := s.clock.Now()
	agg.CreatedAt = now
	agg.UpdatedAt = now
	if err := s.repo.Upsert(ctx, s.db, agg); err != nil {
		return nil, err
	}
	metrics.Decision().ObserveStatsRecompute(time.Since(start))

	return agg, nil
}

func (s *Service) Get(ctx context.Context, ownerID snowflake.ID) (*domain.UserDecisionStats, error) {
	if ownerID == 0 {
		return nil, domain.ErrInvalidUser
	}

	stats, err := s.repo.FindByUserID(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return &domain.UserDecisionStats{UserID: ownerID}, nil
	}
	return stats, nil
}
