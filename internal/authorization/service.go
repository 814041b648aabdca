package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

var (
	ErrInvalidActor  = errors.New("authorization: invalid actor")
	ErrInvalidObject = errors.New("authorization: invalid object")
	ErrInvalidAction = errors.New("authorization: invalid action")
	ErrForbidden     = errors.New("authorization: forbidden")
)

// Service answers whether an actor may perform an action on an object.
type Service interface {
	Authorize(ctx context.Context, actor string, role string, object string, action string) error
}

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
