package apikey

import (
	"github.com/zarver/zarver/internal/apikey/repository"
	"github.com/zarver/zarver/internal/apikey/service"
	"go.uber.org/fx"
)

var Module = fx.Module("apikey.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
