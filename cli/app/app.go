package app

import (
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/services/queue"
)

// App runs plans in-process against the local state dir.
type App struct {
	PipelineService services.PipelineService
	QueueService    services.QueueService
	RunService      services.RunService
	ArtifactService services.ArtifactService
	EventService    services.EventService
	Scheduler       *runner.Scheduler
	TimeoutChecker  *queue.TimeoutChecker
	LogFactory      logger.LogFactory
}

func NewApp(
	pipelineService services.PipelineService,
	queueService services.QueueService,
	runService services.RunService,
	artifactService services.ArtifactService,
	eventService services.EventService,
	scheduler *runner.Scheduler,
	timeoutChecker *queue.TimeoutChecker,
	logFactory logger.LogFactory,
) *App {
	return &App{
		PipelineService: pipelineService,
		QueueService:    queueService,
		RunService:      runService,
		ArtifactService: artifactService,
		EventService:    eventService,
		Scheduler:       scheduler,
		TimeoutChecker:  timeoutChecker,
		LogFactory:      logFactory,
	}
}

// MakeLogFactory sends all log output to the log file, keeping the terminal free for job progress.
func MakeLogFactory(logRegistry *logger.LogRegistry, logFilePath logger.LogFilePath) (logger.LogFactory, error) {
	return logger.MakeLogrusLogFactoryToFile(logRegistry, logFilePath)
}
