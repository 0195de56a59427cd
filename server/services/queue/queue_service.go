package queue

import (
	"context"
	"fmt"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/services"
)

type QueueService struct {
	pipelineService services.PipelineService
	resolverService services.ResolverService
	eventService    services.EventService
	executor        services.PlanExecutor
	logger.Log
}

func NewQueueService(
	pipelineService services.PipelineService,
	resolverService services.ResolverService,
	eventService services.EventService,
	executor services.PlanExecutor,
	logFactory logger.LogFactory,
) *QueueService {
	return &QueueService{
		pipelineService: pipelineService,
		resolverService: resolverService,
		eventService:    eventService,
		executor:        executor,
		Log:             logFactory("QueueService"),
	}
}

// Plan resolves an execution plan for root against the current pipeline without running anything.
func (s *QueueService) Plan(ctx context.Context, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error) {
	pipeline, err := s.pipelineService.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("error loading pipeline: %w", err)
	}
	return s.resolverService.Resolve(ctx, pipeline, root, opts)
}

// Enqueue resolves an execution plan for root and submits it for execution.
// The plan is returned as soon as it has been accepted; runs are created as the plan executes.
func (s *QueueService) Enqueue(ctx context.Context, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error) {
	plan, err := s.Plan(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	// Subscribers watching the plan see it queued before any of its runs are created
	_, err = s.eventService.PublishEvent(ctx, nil, models.NewPlanQueuedEventData(plan))
	if err != nil {
		return nil, fmt.Errorf("error publishing plan queued event: %w", err)
	}
	err = s.executor.Submit(plan)
	if err != nil {
		return nil, fmt.Errorf("error submitting plan: %w", err)
	}
	s.WithFields(logger.Fields{
		"plan_id": plan.ID,
		"job_id":  root,
		"builds":  len(plan.BuildSteps()),
		"steps":   len(plan.Steps),
	}).Info("Enqueued plan")
	return plan, nil
}
