package stats

import (
	"github.com/zarver/zarver/internal/stats/repository"
	"github.com/zarver/zarver/internal/stats/service"
	"go.uber.org/fx"
)

var Module = fx.Module("stats.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
