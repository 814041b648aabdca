package seed

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pantheonhq/pantheon/internal/config"
)

var Module = fx.Module("seed",
	fx.Invoke(run),
)

func run(db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
	return EnsureAdmin(context.Background(), db, cfg, node)
}
