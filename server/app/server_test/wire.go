//go:build wireinject
// +build wireinject

package server_test

import (
	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/api/rest/server/servertest"
	"github.com/buildbeaver/depchain/server/app"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/services/artifact"
	"github.com/buildbeaver/depchain/server/services/event"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/queue"
	"github.com/buildbeaver/depchain/server/services/resolver"
	"github.com/buildbeaver/depchain/server/services/run"
	"github.com/buildbeaver/depchain/server/store"
	"github.com/buildbeaver/depchain/server/store/artifacts"
	"github.com/buildbeaver/depchain/server/store/events"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

func New(config *app.ServerConfig) (*TestServer, func(), error) {
	panic(wire.Build(
		NewTestServer,
		wire.FieldsOf(new(*app.ServerConfig), "BlobStoreConfig", "APIServerConfig", "PipelineConfig", "ExecutorConfig", "OrchestratorConfig", "SchedulerConfig", "LogLevels"),
		store_test.Connect,

		// Stores
		runs.NewStore,
		wire.Bind(new(store.RunStore), new(*runs.RunStore)),
		artifacts.NewStore,
		wire.Bind(new(store.ArtifactStore), new(*artifacts.ArtifactStore)),
		events.NewStore,
		wire.Bind(new(store.EventStore), new(*events.EventStore)),

		// Services
		event.NewEventService,
		wire.Bind(new(services.EventService), new(*event.EventService)),
		run.NewRunService,
		wire.Bind(new(services.RunService), new(*run.RunService)),
		artifact.NewArtifactService,
		wire.Bind(new(services.ArtifactService), new(*artifact.ArtifactService)),
		pipeline.NewPipelineService,
		wire.Bind(new(services.PipelineService), new(*pipeline.PipelineService)),
		resolver.NewResolverService,
		wire.Bind(new(services.ResolverService), new(*resolver.ResolverService)),
		queue.NewQueueService,
		wire.Bind(new(services.QueueService), new(*queue.QueueService)),
		app.BlobStoreFactory,

		// Execution
		runner.NewExecutor,
		runner.NewOrchestrator,
		runner.NewScheduler,
		wire.Bind(new(services.PlanExecutor), new(*runner.Scheduler)),

		app.APISet,
		servertest.HTTPTestServerFactory,
		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}
