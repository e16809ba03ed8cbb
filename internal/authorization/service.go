// Package authorization gates the internal admin surface with casbin RBAC.
// Subjects are "system" or "api_key:<key_id>"; roles come from the api_keys
// table and policies are seeded at startup.
package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

type Service interface {
	// Authorize returns nil when the actor may perform action on object.
	Authorize(ctx context.Context, actor string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
