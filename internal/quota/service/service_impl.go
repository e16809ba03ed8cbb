package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/config"
	"github.com/zarver/zarver/internal/observability/metrics"
	"github.com/zarver/zarver/internal/quota/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Policy  *config.DecisionPolicyHolder
	Metrics *metrics.Metrics `optional:"true"`
	Repo    domain.Repository
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	policy  *config.DecisionPolicyHolder
	metrics *metrics.Metrics
	repo    domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("quota.service"),
		clock:   p.Clock,
		policy:  p.Policy,
		metrics: p.Metrics,
		repo:    p.Repo,
	}
}

func (s *Service) Provision(ctx context.Context, userID snowflake.ID) (*domain.Status, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	now := s.clock.Now()
	state := &domain.QuotaState{
		UserID:           userID,
		Premium:          false,
		QueriesUsedToday: 0,
		QuotaDate:        dateOf(now),
		DailyLimit:       s.policy.Get().DailyFreeLimit,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, state); err != nil {
		return nil, err
	}

	// Re-read so a repeated provision reports the stored counters instead
	// of the zero row it tried to insert.
	stored, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrNotFound
	}

	status := s.toStatus(stored, now)
	return &status, nil
}

func (s *Service) CheckAndConsume(ctx context.Context, userID snowflake.ID) (domain.ConsumeResult, error) {
	if userID == 0 {
		return domain.ConsumeResult{}, domain.ErrInvalidUser
	}

	var result domain.ConsumeResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lockStart := time.Now()
		state, err := s.repo.FindByUserIDForUpdate(ctx, tx, userID)
		metrics.Decision().ObserveDBLockWait(metrics.LockResourceQuotaState, time.Since(lockStart))
		if err != nil {
			return err
		}
		if state == nil {
			return domain.ErrNotFound
		}

		now := s.clock.Now()
		today := dateOf(now)
		rolled := !sameDay(state.QuotaDate, today)
		if rolled {
			state.QueriesUsedToday = 0
			state.QuotaDate = today
		}

		if state.Premium {
			result = domain.ConsumeResult{
				Allowed:    true,
				Premium:    true,
				Remaining:  domain.RemainingUnlimited,
				DailyLimit: state.DailyLimit,
			}
			if rolled {
				state.UpdatedAt = now
				return s.repo.Update(ctx, tx, state)
			}
			return nil
		}

		if state.QueriesUsedToday >= state.DailyLimit {
			result = domain.ConsumeResult{
				Allowed:    false,
				Remaining:  0,
				DailyLimit: state.DailyLimit,
			}
			if rolled {
				state.UpdatedAt = now
				return s.repo.Update(ctx, tx, state)
			}
			return nil
		}

		state.QueriesUsedToday++
		state.UpdatedAt = now
		result = domain.ConsumeResult{
			Allowed:    true,
			Remaining:  state.DailyLimit - state.QueriesUsedToday,
			DailyLimit: state.DailyLimit,
		}
		return s.repo.Update(ctx, tx, state)
	})
	if err != nil {
		metrics.Decision().IncPipelineError(metrics.StageQuota, err)
		return domain.ConsumeResult{}, err
	}

	if !result.Allowed {
		s.metrics.RecordQuotaDenied(ctx, "free")
		s.log.Info("quota exceeded",
			zap.String("user_id", userID.String()),
			zap.Int("daily_limit", result.DailyLimit),
		)
	}

	return result, nil
}

func (s *Service) Status(ctx context.Context, userID snowflake.ID) (domain.Status, error) {
	if userID == 0 {
		return domain.Status{}, domain.ErrInvalidUser
	}

	state, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Status{}, err
	}
	if state == nil {
		return domain.Status{}, domain.ErrNotFound
	}

	return s.toStatus(state, s.clock.Now()), nil
}

func (s *Service) GrantPremium(ctx context.Context, userID snowflake.ID) error {
	return s.setPremium(ctx, userID, true)
}

func (s *Service) RevokePremium(ctx context.Context, userID snowflake.ID) error {
	return s.setPremium(ctx, userID, false)
}

func (s *Service) setPremium(ctx context.Context, userID snowflake.ID, premium bool) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	updated, err := s.repo.SetPremium(ctx, s.db, userID, premium, s.clock.Now())
	if err != nil {
		return err
	}
	if !updated {
		return domain.ErrNotFound
	}

	s.log.Info("premium flag updated",
		zap.String("user_id", userID.String()),
		zap.Bool("premium", premium),
	)
	return nil
}

// toStatus applies the date rollover in memory. Reads never persist the
// reset; the next consume does that under the row lock.
func (s *Service) toStatus(state *domain.QuotaState, now time.Time) domain.Status {
	used := state.QueriesUsedToday
	if !sameDay(state.QuotaDate, dateOf(now)) {
		used = 0
	}

	status := domain.Status{
		UserID:           state.UserID,
		Premium:          state.Premium,
		QueriesUsedToday: used,
		DailyLimit:       state.DailyLimit,
	}
	if state.Premium {
		status.QueriesRemaining = domain.RemainingUnlimited
		return status
	}

	remaining := state.DailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	status.QueriesRemaining = remaining
	return status
}

func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
