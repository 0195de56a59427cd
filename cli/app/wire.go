//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/buildbeaver/depchain/common/logger"
	server_app "github.com/buildbeaver/depchain/server/app"
)

func New(ctx context.Context, config *CLIConfig) (*App, func(), error) {
	panic(wire.Build(
		NewApp,
		wire.FieldsOf(new(*CLIConfig), "LogFilePath", "LogLevels", "BlobStoreConfig", "DatabaseConfig", "PipelineConfig", "ExecutorConfig", "OrchestratorConfig", "SchedulerConfig", "TimeoutCheckerConfig"),
		server_app.ServiceSet,
		MakeLogFactory,
		logger.NewLogRegistry,
		clock.New,
	))
}
