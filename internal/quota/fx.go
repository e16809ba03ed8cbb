package quota

import (
	"github.com/zarver/zarver/internal/quota/repository"
	"github.com/zarver/zarver/internal/quota/service"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
