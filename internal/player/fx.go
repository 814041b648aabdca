package player

import (
	"github.com/pantheonhq/pantheon/internal/player/service"
	"go.uber.org/fx"
)

var Module = fx.Module("player.service",
	fx.Provide(service.NewService),
)
