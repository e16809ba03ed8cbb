package generator

import (
	"github.com/zarver/zarver/internal/generator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("generator.service",
	fx.Provide(service.New),
)
