package bundle

import (
	"go.uber.org/fx"

	"github.com/pantheonhq/pantheon/internal/bundle/service"
)

var Module = fx.Module("bundle.service",
	fx.Provide(service.NewService),
)
