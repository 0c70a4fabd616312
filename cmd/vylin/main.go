package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/vylinhq/vylin/internal/clock"
	"github.com/vylinhq/vylin/internal/config"
	"github.com/vylinhq/vylin/internal/migration"
	"github.com/vylinhq/vylin/internal/observability"
	"github.com/vylinhq/vylin/internal/server"
	"github.com/vylinhq/vylin/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
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
