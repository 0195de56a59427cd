package app

import (
	"context"
	"fmt"

	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/api/rest/server"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/services/queue"
)

type Server struct {
	PipelineService services.PipelineService
	QueueService    services.QueueService
	RunService      services.RunService
	ArtifactService services.ArtifactService
	EventService    services.EventService
	Scheduler       *runner.Scheduler
	TimeoutChecker  *queue.TimeoutChecker
	APIServer       *server.AppAPIServer
}

func NewServer(
	pipelineService services.PipelineService,
	queueService services.QueueService,
	runService services.RunService,
	artifactService services.ArtifactService,
	eventService services.EventService,
	scheduler *runner.Scheduler,
	timeoutChecker *queue.TimeoutChecker,
	apiServer *server.AppAPIServer,
) *Server {
	return &Server{
		PipelineService: pipelineService,
		QueueService:    queueService,
		RunService:      runService,
		ArtifactService: artifactService,
		EventService:    eventService,
		Scheduler:       scheduler,
		TimeoutChecker:  timeoutChecker,
		APIServer:       apiServer,
	}
}

// Start loads the pipeline, so that a broken pipeline stops the server from starting, then starts
// executing plans and serving the API.
func (s *Server) Start(ctx context.Context) error {
	if _, err := s.PipelineService.Load(ctx); err != nil {
		return fmt.Errorf("error loading pipeline: %w", err)
	}
	s.Scheduler.Start()
	s.TimeoutChecker.Start()
	s.APIServer.Start()
	return nil
}

// Stop disconnects event stream clients, stops serving the API and then cancels any plans in progress.
func (s *Server) Stop(ctx context.Context) error {
	s.APIServer.CloseEventStreams()
	err := s.APIServer.Stop(ctx)
	s.Scheduler.Stop()
	s.TimeoutChecker.Stop()
	return err
}
