package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/decision/domain"
	votedomain "github.com/zarver/zarver/internal/vote/domain"
	"github.com/zarver/zarver/pkg/db/pagination"
)

// PublicFeed lists resolved public decisions reverse-chronologically with
// their vote tallies. Unresolved or non-public records never appear.
func (s *Service) PublicFeed(ctx context.Context, req domain.FeedRequest) (domain.FeedResponse, error) {
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = int32(s.policy.Get().FeedPageSize)
	}

	items, err := s.repo.ListPublicResolved(ctx, s.db, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.FeedResponse{}, err
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

	ids := make([]snowflake.ID, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		ids = append(ids, item.ID)
	}

	counts, err := s.votes.CountsFor(ctx, ids)
	if err != nil {
		return domain.FeedResponse{}, err
	}

	feed := make([]domain.FeedItem, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		feed = append(feed, toFeedItem(item, counts[item.ID]))
	}

	resp := domain.FeedResponse{Items: feed}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

// GetBySlug fetches one public resolved decision by its share slug. Records
// that exist but are not public (or not yet resolved) report NotFound so the
// slug never leaks their existence.
func (s *Service) GetBySlug(ctx context.Context, shareSlug string) (*domain.FeedItem, error) {
	shareSlug = strings.TrimSpace(shareSlug)
	if shareSlug == "" {
		return nil, domain.ErrNotFound
	}

	decision, err := s.repo.FindBySlug(ctx, s.db, shareSlug)
	if err != nil {
		return nil, err
	}
	if decision == nil || decision.PrivacyLevel != domain.PrivacyPublic || !decision.Resolved() {
		return nil, domain.ErrNotFound
	}

	counts, err := s.votes.CountsFor(ctx, []snowflake.ID{decision.ID})
	if err != nil {
		return nil, err
	}

	item := toFeedItem(decision, counts[decision.ID])
	return &item, nil
}

func toFeedItem(decision *domain.Decision, counts votedomain.Counts) domain.FeedItem {
	selectedIndex := 0
	if decision.SelectedIndex != nil {
		selectedIndex = *decision.SelectedIndex
	}
	return domain.FeedItem{
		ID:            decision.ID.String(),
		OwnerID:       decision.OwnerID.String(),
		Text:          decision.Text,
		SelectedIndex: selectedIndex,
		SelectedText:  decision.SelectedText(),
		Implemented:   decision.Implemented,
		VoteStats: domain.VoteStats{
			Helpful:   counts.Helpful,
			Unhelpful: counts.Unhelpful,
			Total:     counts.Total,
		},
		ShareSlug: decision.ShareSlug,
		CreatedAt: decision.CreatedAt,
	}
}
