//go:build wireinject
// +build wireinject

package app

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/google/wire"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/api/rest/server"
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
	"github.com/buildbeaver/depchain/server/store/migrations"
	"github.com/buildbeaver/depchain/server/store/runs"
)

// ServiceSet provides every store and service, and the scheduler executing plans.
// It needs a ServerConfig's fields, a LogFactory and a Clock.
var ServiceSet = wire.NewSet(
	store.NewDatabase,
	migrations.NewRunHistoryMigrateRunner,
	wire.Bind(new(store.MigrationRunner), new(*migrations.GolangMigrateRunner)),

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
	queue.NewTimeoutChecker,
	BlobStoreFactory,

	// Execution
	runner.NewExecutor,
	runner.NewOrchestrator,
	runner.NewScheduler,
	wire.Bind(new(services.PlanExecutor), new(*runner.Scheduler)),
)

// APISet provides the REST API handlers and router.
var APISet = wire.NewSet(
	server.NewJobAPI,
	server.NewRunAPI,
	server.NewPlanAPI,
	server.NewArtifactAPI,
	server.NewEventAPI,
	server.NewAppAPIRouter,
	server.NewAppAPIServer,
)

func New(ctx context.Context, config *ServerConfig) (*Server, func(), error) {
	panic(wire.Build(
		NewServer,
		wire.FieldsOf(new(*ServerConfig), "BlobStoreConfig", "APIServerConfig", "DatabaseConfig", "PipelineConfig", "ExecutorConfig", "OrchestratorConfig", "SchedulerConfig", "TimeoutCheckerConfig", "LogLevels"),
		ServiceSet,
		APISet,
		server.RealHTTPServerFactory,
		logger.NewLogRegistry,
		logger.MakeLogrusLogFactoryStdOut,
		clock.New,
	))
}
