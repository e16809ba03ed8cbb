package vote

import (
	"github.com/zarver/zarver/internal/vote/repository"
	"github.com/zarver/zarver/internal/vote/service"
	"go.uber.org/fx"
)

var Module = fx.Module("vote.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
