package queue_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services/event"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/queue"
	"github.com/buildbeaver/depchain/server/services/resolver"
	"github.com/buildbeaver/depchain/server/services/run"
	"github.com/buildbeaver/depchain/server/store/events"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

const testPipeline = `
jobs:
  - id: compile
    commands: ["make"]
    artifactRules: out/**
  - id: package
    commands: ["make package"]
    dependencies:
      - target: compile
        artifacts:
          artifactRules: out/** => bin
`

type fakeExecutor struct {
	plans []*models.ExecutionPlan
	err   error
}

func (f *fakeExecutor) Submit(plan *models.ExecutionPlan) error {
	if f.err != nil {
		return f.err
	}
	f.plans = append(f.plans, plan)
	return nil
}

type testEnv struct {
	clock        *clock.Mock
	executor     *fakeExecutor
	eventService *event.EventService
	runService   *run.RunService
	queueService *queue.QueueService
	logFactory   logger.LogFactory
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)

	workDir := t.TempDir()
	err = os.WriteFile(filepath.Join(workDir, models.DefaultPipelineFileName), []byte(testPipeline), 0644)
	require.NoError(t, err)

	clk := clock.NewMock()
	clk.Set(time.Now())
	executor := &fakeExecutor{}
	eventService := event.NewEventService(db, events.NewStore(db, logFactory), clk, logFactory)
	runService := run.NewRunService(db, runs.NewStore(db, logFactory), eventService, clk, logFactory)
	pipelineService := pipeline.NewPipelineService(pipeline.NewDefaultPipelineConfig(workDir), logFactory)
	resolverService := resolver.NewResolverService(pipelineService, runService, logFactory)
	return &testEnv{
		clock:        clk,
		executor:     executor,
		eventService: eventService,
		runService:   runService,
		queueService: queue.NewQueueService(pipelineService, resolverService, eventService, executor, logFactory),
		logFactory:   logFactory,
	}, cleanup
}

func TestEnqueue(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	plan, err := env.queueService.Enqueue(ctx, "package", models.PlanOptions{})
	require.NoError(t, err)
	require.Equal(t, models.JobID("package"), plan.Root)
	require.Len(t, plan.Steps, 2)
	require.Len(t, env.executor.plans, 1)
	require.Same(t, plan, env.executor.plans[0])

	queued, err := env.eventService.FetchEvents(ctx, plan.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	require.Equal(t, models.PlanQueuedEvent, queued[0].Type)
	require.Equal(t, models.JobID("package"), queued[0].JobID)

	// Planning is a dry run
	dryRun, err := env.queueService.Plan(ctx, "package", models.PlanOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, dryRun.BuildSteps(), 2)
	require.Len(t, env.executor.plans, 1)
	runs, err := env.runService.ListByPlan(ctx, nil, dryRun.ID)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestEnqueueErrors(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	_, err := env.queueService.Enqueue(ctx, "deploy", models.PlanOptions{})
	require.True(t, gerror.IsNotFound(err))

	env.executor.err = fmt.Errorf("scheduler is stopped")
	_, err = env.queueService.Enqueue(ctx, "compile", models.PlanOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheduler is stopped")
}

func TestTimeoutChecker(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	step := &models.PlanStep{
		JobID:               "compile",
		Action:              models.StepActionBuild,
		Fingerprint:         "0123456789abcdef",
		FingerprintHashType: models.HashTypeFNV,
	}
	planID := models.NewPlanID()
	stuck, err := env.runService.Create(ctx, nil, planID, step)
	require.NoError(t, err)
	_, err = env.runService.UpdateStatus(ctx, nil, stuck.ID, dto.UpdateRunStatus{Status: models.RunStatusRunning})
	require.NoError(t, err)
	finished, err := env.runService.Create(ctx, nil, planID, step)
	require.NoError(t, err)
	_, err = env.runService.UpdateStatus(ctx, nil, finished.ID, dto.UpdateRunStatus{Status: models.RunStatusRunning})
	require.NoError(t, err)
	_, err = env.runService.UpdateStatus(ctx, nil, finished.ID, dto.UpdateRunStatus{Status: models.RunStatusSucceeded})
	require.NoError(t, err)

	checker := queue.NewTimeoutChecker(env.runService, env.clock, queue.NewDefaultTimeoutCheckerConfig(), env.logFactory)
	checker.Start()
	defer checker.Stop()

	env.clock.Add(30 * time.Minute)
	require.Equal(t, 0, checker.CheckForTimeouts(time.Hour))

	env.clock.Add(time.Hour)
	require.Equal(t, 1, checker.CheckForTimeouts(time.Hour))

	timedOut, err := env.runService.Read(ctx, nil, stuck.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, timedOut.Status)
	require.NotNil(t, timedOut.Error)
	require.Equal(t, gerror.ErrCodeTimeout, timedOut.Error.Code())
	require.NotNil(t, timedOut.Timings.FinishedAt)

	unchanged, err := env.runService.Read(ctx, nil, finished.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusSucceeded, unchanged.Status)

	// Nothing is left to time out
	require.Equal(t, 0, checker.CheckForTimeouts(time.Minute))
}
