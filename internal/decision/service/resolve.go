package service

import (
	"context"
	"math/rand/v2"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/decision/domain"
	"github.com/zarver/zarver/internal/observability/metrics"
	"go.uber.org/zap"
)

// Resolve picks one alternative uniformly at random and flips the record to
// resolved. The flip is a compare-and-set on the unresolved state, so of two
// concurrent calls exactly one wins; the loser reports AlreadyResolved
// instead of re-rolling.
func (s *Service) Resolve(ctx context.Context, decisionID, requesterID snowflake.ID) (*domain.ResolveDecisionResponse, error) {
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
	if decision.Resolved() {
		metrics.Decision().IncResolutionAttempt(metrics.ResolutionResultConflict)
		return nil, domain.ErrAlreadyResolved
	}
	if len(decision.Alternatives) == 0 {
		metrics.Decision().IncResolutionAttempt(metrics.ResolutionResultError)
		return nil, domain.ErrInvalidAlternatives
	}

	idx := rand.IntN(len(decision.Alternatives))
	now := s.clock.Now()

	won, err := s.repo.MarkResolved(ctx, s.db, decisionID, idx, now)
	if err != nil {
		metrics.Decision().IncResolutionAttempt(metrics.ResolutionResultError)
		metrics.Decision().IncPipelineError(metrics.StageResolve, err)
		return nil, err
	}
	if !won {
		metrics.Decision().IncResolutionAttempt(metrics.ResolutionResultConflict)
		return nil, domain.ErrAlreadyResolved
	}

	metrics.Decision().IncResolutionAttempt(metrics.ResolutionResultResolved)
	s.metrics.RecordDecisionResolved(ctx, idx+1)
	s.log.Info("decision resolved",
		zap.String("decision_id", decisionID.String()),
		zap.Int("selected_index", idx),
	)

	return &domain.ResolveDecisionResponse{
		ID:            decisionID.String(),
		SelectedIndex: idx,
		SelectedText:  decision.Alternatives[idx],
		ResolvedAt:    now,
	}, nil
}

// AnnotateOutcome records whether the owner actually implemented the
// selected alternative. Allowed any number of times after resolution; the
// derived per-user stats are recomputed so re-annotation never double
// counts.
func (s *Service) AnnotateOutcome(ctx context.Context, decisionID, requesterID snowflake.ID, implemented bool) (*domain.Decision, error) {
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
	if !decision.Resolved() {
		return nil, domain.ErrNotYetResolved
	}

	ok, err := s.repo.SetImplemented(ctx, s.db, decisionID, implemented, s.clock.Now())
	if err != nil {
		metrics.Decision().IncPipelineError(metrics.StageAnnotate, err)
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotYetResolved
	}

	if _, err := s.stats.Recompute(ctx, requesterID); err != nil {
		// The annotation is already durable; stale stats heal on the next
		// recompute.
		metrics.Decision().IncPipelineError(metrics.StageStatsRecompute, err)
		s.log.Warn("stats recompute failed",
			zap.String("owner_id", requesterID.String()),
			zap.Error(err),
		)
	}

	updated, err := s.repo.FindByID(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}
	return updated, nil
}

// SetPrivacy changes who can see a still-unresolved decision. Switching to
// public assigns a share slug on first use; the slug survives later privacy
// changes.
func (s *Service) SetPrivacy(ctx context.Context, decisionID, requesterID snowflake.ID, level domain.PrivacyLevel) (*domain.Decision, error) {
	if decisionID == 0 {
		return nil, domain.ErrInvalidDecision
	}
	if requesterID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if !level.Valid() {
		return nil, domain.ErrInvalidPrivacyLevel
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
	if decision.Resolved() {
		return nil, domain.ErrAlreadyResolved
	}

	var shareSlug *string
	if level == domain.PrivacyPublic && decision.ShareSlug == nil {
		v := s.newShareSlug(decision.Text, decision.ID)
		shareSlug = &v
	}

	ok, err := s.repo.UpdatePrivacy(ctx, s.db, decisionID, level, shareSlug, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		// A concurrent resolve landed between the read and the update.
		return nil, domain.ErrAlreadyResolved
	}

	updated, err := s.repo.FindByID(ctx, s.db, decisionID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, domain.ErrNotFound
	}
	return updated, nil
}
