package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Counts is the vote tally for one decision, recomputed from the votes
// table on every read.
type Counts struct {
	Helpful   int64 `json:"helpful"`
	Unhelpful int64 `json:"unhelpful"`
	Total     int64 `json:"total"`
}

type CastVoteRequest struct {
	DecisionID snowflake.ID `json:"-"`
	UserID     snowflake.ID `json:"-"`
	VoteType   VoteType     `json:"vote_type"`
}

type CastVoteResponse struct {
	DecisionID string   `json:"decision_id"`
	VoteType   VoteType `json:"vote_type"`
	Stats      Counts   `json:"vote_stats"`
}

type VoteStatsResponse struct {
	Counts
	HelpfulPercentage int `json:"helpful_percentage"`
}

type Service interface {
	// Cast records or switches the caller's vote on a resolved public
	// decision and returns the fresh tally.
	Cast(ctx context.Context, req CastVoteRequest) (*CastVoteResponse, error)
	StatsFor(ctx context.Context, decisionID snowflake.ID) (*VoteStatsResponse, error)
	// CountsFor batches tallies for feed assembly. Decisions without votes
	// are simply absent from the result map.
	CountsFor(ctx context.Context, decisionIDs []snowflake.ID) (map[snowflake.ID]Counts, error)
}

var (
	ErrInvalidDecision = errors.New("invalid_decision")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidVoteType = errors.New("invalid_vote_type")
	// ErrNotFound covers missing, non-public, and unresolved targets alike
	// so voting never reveals that a private decision exists.
	ErrNotFound = errors.New("vote_target_not_found")
)
