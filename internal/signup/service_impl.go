package signup

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/zarver/zarver/internal/quota/domain"
	"github.com/zarver/zarver/internal/signup/domain"
)

type service struct {
	quotasvc quotadomain.Service
}

func NewService(quotasvc quotadomain.Service) domain.Service {
	return &service{quotasvc: quotasvc}
}

// Signup provisions the quota ledger row for a freshly registered user.
// Repeats are safe: the ledger insert is idempotent, so replaying a signup
// webhook reports the existing row instead of failing.
func (s *service) Signup(ctx context.Context, req domain.Request) (*domain.Result, error) {
	raw := strings.TrimSpace(req.UserID)
	if raw == "" {
		return nil, domain.ErrInvalidRequest
	}

	userID, err := snowflake.ParseString(raw)
	if err != nil || userID == 0 {
		return nil, domain.ErrInvalidRequest
	}

	status, err := s.quotasvc.Provision(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Premium && !status.Premium {
		if err := s.quotasvc.GrantPremium(ctx, userID); err != nil {
			return nil, err
		}
		refreshed, err := s.quotasvc.Status(ctx, userID)
		if err != nil {
			return nil, err
		}
		status = &refreshed
	}

	return &domain.Result{
		UserID: userID.String(),
		Quota:  *status,
	}, nil
}
