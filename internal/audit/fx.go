package audit

import (
	"github.com/zarver/zarver/internal/audit/repository"
	"github.com/zarver/zarver/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
