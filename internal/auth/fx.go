package auth

import (
	"github.com/pantheonhq/pantheon/internal/auth/service"
	"github.com/pantheonhq/pantheon/internal/auth/token"
	"github.com/pantheonhq/pantheon/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(provideIssuer),
	fx.Provide(service.New),
)

func provideIssuer(cfg config.Config) (*token.Issuer, error) {
	return token.NewIssuer(cfg.AuthJWTSecret, 0)
}
