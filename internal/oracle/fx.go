package oracle

import (
	"github.com/pantheonhq/pantheon/internal/oracle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("oracle.service",
	fx.Provide(service.NewService),
)
