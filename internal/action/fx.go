package action

import (
	"github.com/pantheonhq/pantheon/internal/action/service"
	"go.uber.org/fx"
)

var Module = fx.Module("action.service",
	fx.Provide(service.NewService),
)
