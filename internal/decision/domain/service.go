package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/pkg/db/pagination"
)

type CreateDecisionRequest struct {
	OwnerID      snowflake.ID `json:"-"`
	Text         string       `json:"text"`
	PrivacyLevel PrivacyLevel `json:"privacy_level,omitempty"`
}

// CreateDecisionResponse returns the new record's id and alternatives plus
// the caller's remaining daily quota after the consumed attempt.
// QueriesRemaining is -1 for premium users.
type CreateDecisionResponse struct {
	ID               string       `json:"id"`
	Alternatives     []string     `json:"alternatives"`
	PrivacyLevel     PrivacyLevel `json:"privacy_level"`
	ShareSlug        *string      `json:"share_slug,omitempty"`
	QueriesRemaining int          `json:"queries_remaining"`
	CreatedAt        time.Time    `json:"created_at"`
}

type ResolveDecisionResponse struct {
	ID            string    `json:"id"`
	SelectedIndex int       `json:"selected_index"`
	SelectedText  string    `json:"selected_text"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

type ListHistoryRequest struct {
	OwnerID   snowflake.ID
	PageToken string
	PageSize  int32
}

type ListHistoryResponse struct {
	pagination.PageInfo
	Decisions []Decision `json:"decisions"`
}

type FeedRequest struct {
	PageToken string
	PageSize  int32
}

// VoteStats summarizes community votes on a public decision.
type VoteStats struct {
	Helpful   int64 `json:"helpful"`
	Unhelpful int64 `json:"unhelpful"`
	Total     int64 `json:"total"`
}

// FeedItem is the public projection of a resolved decision. Alternatives
// other than the selected one are not exposed.
type FeedItem struct {
	ID            string    `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Text          string    `json:"text"`
	SelectedIndex int       `json:"selected_index"`
	SelectedText  string    `json:"selected_text"`
	Implemented   *bool     `json:"implemented,omitempty"`
	VoteStats     VoteStats `json:"vote_stats"`
	ShareSlug     *string   `json:"share_slug,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type FeedResponse struct {
	pagination.PageInfo
	Items []FeedItem `json:"items"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Create(ctx context.Context, req CreateDecisionRequest) (*CreateDecisionResponse, error)
	GetByID(ctx context.Context, decisionID, requesterID snowflake.ID) (*Decision, error)
	ListHistory(ctx context.Context, req ListHistoryRequest) (ListHistoryResponse, error)
	Resolve(ctx context.Context, decisionID, requesterID snowflake.ID) (*ResolveDecisionResponse, error)
	AnnotateOutcome(ctx context.Context, decisionID, requesterID snowflake.ID, implemented bool) (*Decision, error)
	SetPrivacy(ctx context.Context, decisionID, requesterID snowflake.ID, level PrivacyLevel) (*Decision, error)
	PublicFeed(ctx context.Context, req FeedRequest) (FeedResponse, error)
	GetBySlug(ctx context.Context, slug string) (*FeedItem, error)
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidDecision     = errors.New("invalid_decision")
	ErrInvalidText         = errors.New("invalid_text")
	ErrTextTooLong         = errors.New("invalid_text_length")
	ErrInvalidPrivacyLevel = errors.New("invalid_privacy_level")
	ErrInvalidAlternatives = errors.New("invalid_alternatives")
	ErrNotFound            = errors.New("decision_not_found")
	ErrForbidden           = errors.New("decision_forbidden")
	ErrAlreadyResolved     = errors.New("already_resolved")
	ErrNotYetResolved      = errors.New("not_yet_resolved")
	ErrQuotaExceeded       = errors.New("quota_exceeded")
)

// QuotaExceededError wraps ErrQuotaExceeded with the caller's daily limit so
// the transport layer can report it alongside remaining=0.
type QuotaExceededError struct {
	DailyLimit int
}

func (e *QuotaExceededError) Error() string { return ErrQuotaExceeded.Error() }

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }
