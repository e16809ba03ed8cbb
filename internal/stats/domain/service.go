package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// Recompute rebuilds the aggregate from the owner's decision rows and
	// stores it. Safe to call repeatedly.
	Recompute(ctx context.Context, ownerID snowflake.ID) (*UserDecisionStats, error)
	// Get returns the stored aggregate, or a zero-valued one for users who
	// have no decisions yet.
	Get(ctx context.Context, ownerID snowflake.ID) (*UserDecisionStats, error)
}

var ErrInvalidUser = errors.New("invalid_user")
