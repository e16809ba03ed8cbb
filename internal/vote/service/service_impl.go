package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/observability/metrics"
	"github.com/zarver/zarver/internal/vote/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Repo    domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	repo    domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("vote.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) Cast(ctx context.Context, req domain.CastVoteRequest) (*domain.CastVoteResponse, error) {
	if req.DecisionID == 0 {
		return nil, domain.ErrInvalidDecision
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if !req.VoteType.Valid() {
		return nil, domain.ErrInvalidVoteType
	}

	eligible, err := s.repo.FindVotable(ctx, s.db, req.DecisionID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now()
	vote := &domain.DecisionVote{
		ID:         s.genID.Generate(),
		DecisionID: req.DecisionID,
		UserID:     req.UserID,
		VoteType:   req.VoteType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(ctx, s.db, vote); err != nil {
		metrics.Decision().IncPipelineError(metrics.StageVote, err)
		return nil, err
	}

	s.metrics.RecordVoteCast(ctx, string(req.VoteType))
	s.log.Info("vote cast",
		zap.String("decision_id", req.DecisionID.String()),
		zap.String("vote_type", string(req.VoteType)),
	)

	counts, err := s.repo.CountByDecision(ctx, s.db, req.DecisionID)
	if err != nil {
		return nil, err
	}

	return &domain.CastVoteResponse{
		DecisionID: req.DecisionID.String(),
		VoteType:   req.VoteType,
		Stats:      counts,
	}, nil
}

func (s *Service) StatsFor(ctx context.Context, decisionID snowflake.ID) (*domain.VoteStatsResponse, error) {
	if decisionID == 0 {
		return nil, domain.ErrInvalidDecision
	}

	eligible, err := s.repo.FindVotable(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, domain.ErrNotFound
	}

	counts, err := s.repo.CountByDecision(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}

	percentage := 0
	if counts.Total > 0 {
		percentage = int(counts.Helpful * 100 / counts.Total)
	}

	return &domain.VoteStatsResponse{
		Counts:            counts,
		HelpfulPercentage: percentage,
	}, nil
}

func (s *Service) CountsFor(ctx context.Context, decisionIDs []snowflake.ID) (map[snowflake.ID]domain.Counts, error) {
	return s.repo.CountByDecisionIDs(ctx, s.db, decisionIDs)
}
