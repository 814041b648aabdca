package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/pantheonhq/pantheon/internal/config"
	"github.com/pantheonhq/pantheon/internal/migration"
	"github.com/pantheonhq/pantheon/internal/observability"
	"github.com/pantheonhq/pantheon/internal/seed"
	"github.com/pantheonhq/pantheon/internal/server"
	"github.com/pantheonhq/pantheon/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,

		// HTTP surface and functional domains
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
