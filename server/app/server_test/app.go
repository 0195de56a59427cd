package server_test

import (
	"context"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/api/rest/server"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/store"
)

type TestServer struct {
	DB              *store.DB
	RunStore        store.RunStore
	ArtifactStore   store.ArtifactStore
	EventStore      store.EventStore
	PipelineService services.PipelineService
	QueueService    services.QueueService
	RunService      services.RunService
	ArtifactService services.ArtifactService
	EventService    services.EventService
	Scheduler       *runner.Scheduler
	LogFactory      logger.LogFactory

	APIServer *server.AppAPIServer
}

func NewTestServer(
	db *store.DB,
	runStore store.RunStore,
	artifactStore store.ArtifactStore,
	eventStore store.EventStore,
	pipelineService services.PipelineService,
	queueService services.QueueService,
	runService services.RunService,
	artifactService services.ArtifactService,
	eventService services.EventService,
	scheduler *runner.Scheduler,
	logFactory logger.LogFactory,
	apiServer *server.AppAPIServer,
) *TestServer {
	return &TestServer{
		DB:              db,
		RunStore:        runStore,
		ArtifactStore:   artifactStore,
		EventStore:      eventStore,
		PipelineService: pipelineService,
		QueueService:    queueService,
		RunService:      runService,
		ArtifactService: artifactService,
		EventService:    eventService,
		Scheduler:       scheduler,
		LogFactory:      logFactory,
		APIServer:       apiServer,
	}
}

// Start executing plans and serving the API.
func (s *TestServer) Start() {
	s.Scheduler.Start()
	s.APIServer.Start()
}

// Stop disconnects event stream clients before closing the HTTP server, which otherwise waits for
// them, then cancels any plans in progress.
func (s *TestServer) Stop() error {
	s.APIServer.CloseEventStreams()
	err := s.APIServer.Stop(context.Background())
	s.Scheduler.Stop()
	return err
}
