package domain

import (
	"context"
	"errors"

	quotadomain "github.com/zarver/zarver/internal/quota/domain"
)

type Service interface {
	Signup(ctx context.Context, req Request) (*Result, error)
}

// Request provisions quota for a user the auth collaborator just created.
// Identity itself lives outside this service; only the ledger row is ours.
type Request struct {
	UserID  string `json:"user_id"`
	Premium bool   `json:"premium,omitempty"`
}

type Result struct {
	UserID string             `json:"user_id"`
	Quota  quotadomain.Status `json:"quota"`
}

var ErrInvalidRequest = errors.New("invalid signup request")
