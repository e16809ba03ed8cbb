package decision

import (
	"github.com/zarver/zarver/internal/decision/repository"
	"github.com/zarver/zarver/internal/decision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("decision.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
