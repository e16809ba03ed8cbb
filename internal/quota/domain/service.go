package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// RemainingUnlimited is reported instead of a remaining count when the user
// is premium and no ceiling applies.
const RemainingUnlimited = -1

// ConsumeResult reports the outcome of one consumption attempt. A denied
// attempt is an expected outcome, not an error.
type ConsumeResult struct {
	Allowed    bool
	Premium    bool
	Remaining  int
	DailyLimit int
}

// Status is the read-only view of a user's ledger row with the lazy date
// rollover already applied.
type Status struct {
	UserID           snowflake.ID `json:"user_id"`
	Premium          bool         `json:"is_premium"`
	QueriesUsedToday int          `json:"queries_used_today"`
	QueriesRemaining int          `json:"queries_remaining"`
	DailyLimit       int          `json:"daily_limit"`
}

type Service interface {
	// Provision creates the ledger row for a new user. Repeated calls for
	// the same user keep the existing counters.
	Provision(ctx context.Context, userID snowflake.ID) (*Status, error)
	// CheckAndConsume atomically checks the daily allowance and consumes
	// one unit when available.
	CheckAndConsume(ctx context.Context, userID snowflake.ID) (ConsumeResult, error)
	Status(ctx context.Context, userID snowflake.ID) (Status, error)
	GrantPremium(ctx context.Context, userID snowflake.ID) error
	RevokePremium(ctx context.Context, userID snowflake.ID) error
}

var (
	ErrInvalidUser = errors.New("invalid_user")
	ErrNotFound    = errors.New("quota_not_found")
)
