package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/zarver/zarver/internal/clock"
	"github.com/zarver/zarver/internal/migration"
	"github.com/zarver/zarver/internal/observability"
	"github.com/zarver/zarver/internal/server"
	"github.com/zarver/zarver/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure. config.Module rides in with server.Module.
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
