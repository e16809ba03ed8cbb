package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/config"
	"github.com/zarver/zarver/internal/decision/domain"
	generatordomain "github.com/zarver/zarver/internal/generator/domain"
	"github.com/zarver/zarver/internal/observability/metrics"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	statsdomain "github.com/zarver/zarver/internal/stats/domain"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"github.com/zarver/zarver/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultHistoryPageSize = 50

	// Share slugs keep at most this many runes of the decision text before
	// the uniqueness suffix.
	slugTextRunes = 48
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Policy    *config.DecisionPolicyHolder
	Metrics   *metrics.Metrics `optional:"true"`
	Repo      domain.Repository
	Quota     quotadomain.Service
	Generator generatordomain.Service
	Votes     votedomain.Service
	Stats     statsdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	policy    *config.DecisionPolicyHolder
	metrics   *metrics.Metrics
	repo      domain.Repository
	quota     quotadomain.Service
	generator generatordomain.Service
	votes     votedomain.Service
	stats     statsdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("decision.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		policy:    p.Policy,
		metrics:   p.Metrics,
		repo:      p.Repo,
		quota:     p.Quota,
		generator: p.Generator,
		votes:     p.Votes,
		stats:     p.Stats,
	}
}

// Create runs the full creation pipeline: validate, consume one quota unit,
// generate alternatives, persist. The quota gate fires before the generator
// so denied requests never spend a provider call, and nothing is persisted
// until a complete alternative list is in hand.
func (s *Service) Create(ctx context.Context, req domain.CreateDecisionRequest) (*domain.CreateDecisionResponse, error) {
	if req.OwnerID == 0 {
		return nil, domain.ErrInvalidUser
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, domain.ErrInvalidText
	}
	policy := s.policy.Get()
	if utf8.RuneCountInString(text) > policy.MaxTextLength {
		return nil, domain.ErrTextTooLong
	}

	level := req.PrivacyLevel
	if level == "" {
		level = domain.PrivacyPrivate
	}
	if !level.Valid() {
		return nil, domain.ErrInvalidPrivacyLevel
	}

	consume, err := s.quota.CheckAndConsume(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, quotadomain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		if errors.Is(err, quotadomain.ErrInvalidUser) {
			return nil, domain.ErrInvalidUser
		}
		return nil, err
	}
	if !consume.Allowed {
		return nil, &domain.QuotaExceededError{DailyLimit: consume.DailyLimit}
	}

	alternatives, err := s.generator.Generate(ctx, text)
	if err != nil {
		metrics.Decision().IncPipelineError(metrics.StageGenerate, err)
		return nil, err
	}
	if len(alternatives) < domain.MinAlternatives || len(alternatives) > domain.MaxAlternatives {
		metrics.Decision().IncPipelineError(metrics.StageGenerate, domain.ErrInvalidAlternatives)
		return nil, domain.ErrInvalidAlternatives
	}

	now := s.clock.Now()
	decision := &domain.Decision{
		ID:              s.genID.Generate(),
		OwnerID:         req.OwnerID,
		Text:            text,
		Alternatives:    datatypes.NewJSONSlice(alternatives),
		PrivacyLevel:    level,
		ResolutionState: domain.ResolutionUnresolved,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if level == domain.PrivacyPublic {
		shareSlug := s.newShareSlug(text, decision.ID)
		decision.ShareSlug = &shareSlug
	}

	if err := s.repo.Insert(ctx, s.db, decision); err != nil {
		metrics.Decision().IncPipelineError(metrics.StagePersist, err)
		return nil, err
	}

	s.metrics.RecordDecisionCreated(ctx, string(level))
	s.log.Info("decision created",
		zap.String("decision_id", decision.ID.String()),
		zap.String("owner_id", req.OwnerID.String()),
		zap.String("privacy_level", string(level)),
	)

	return &domain.CreateDecisionResponse{
		ID:               decision.ID.String(),
		Alternatives:     alternatives,
		PrivacyLevel:     level,
		ShareSlug:        decision.ShareSlug,
		QueriesRemaining: consume.Remaining,
		CreatedAt:        decision.CreatedAt,
	}, nil
}

func (s *Service) GetByID(ctx context.Context, decisionID, requesterID snowflake.ID) (*domain.Decision, error) {
	if decisionID == 0 {
		return nil, domain.ErrInvalidDecision
	}
	if requesterID == 0 {
		return nil, domain.ErrInvalidUser
	}

	decision, err := s.repo.FindByID(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if decision == nil {
		return nil, domain.ErrNotFound
	}
	if decision.OwnerID != requesterID {
		return nil, domain.ErrForbidden
	}
	return decision, nil
}

func (s *Service) ListHistory(ctx context.Context, req domain.ListHistoryRequest) (domain.ListHistoryResponse, error) {
	if req.OwnerID == 0 {
		return domain.ListHistoryResponse{}, domain.ErrInvalidUser
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultHistoryPageSize
	}

	items, err := s.repo.ListByOwner(ctx, s.db, req.OwnerID, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListHistoryResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(decision *domain.Decision) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        decision.ID.String(),
			CreatedAt: decision.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	decisions := make([]domain.Decision, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		decisions = append(decisions, *item)
	}

	resp := domain.ListHistoryResponse{Decisions: decisions}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

// newShareSlug derives a URL slug from the decision text, suffixed with the
// record id so two decisions with the same text never collide.
func (s *Service) newShareSlug(text string, id snowflake.ID) string {
	base := slug.Make(truncateRunes(text, slugTextRunes))
	if base == "" {
		base = "karar"
	}
	return base + "-" + strings.ToLower(strconv.FormatInt(int64(id), 36))
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
