package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/services/artifact"
	"github.com/buildbeaver/depchain/server/services/blob"
	"github.com/buildbeaver/depchain/server/services/event"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/queue"
	"github.com/buildbeaver/depchain/server/services/resolver"
	"github.com/buildbeaver/depchain/server/services/run"
	"github.com/buildbeaver/depchain/server/store/artifacts"
	"github.com/buildbeaver/depchain/server/store/events"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

type testEnv struct {
	workDir         string
	workspacesDir   string
	scheduler       *runner.Scheduler
	queueService    *queue.QueueService
	runService      *run.RunService
	artifactService *artifact.ArtifactService
	eventService    *event.EventService
}

func newTestEnv(t *testing.T, pipelineYAML string) (*testEnv, func()) {
	if runtime.GOOS == "windows" {
		t.Skip("commands in these tests require a POSIX shell")
	}
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)

	workDir := t.TempDir()
	stateDir := t.TempDir()
	err = os.WriteFile(filepath.Join(workDir, models.DefaultPipelineFileName), []byte(pipelineYAML), 0644)
	require.NoError(t, err)

	clk := clock.New()
	blobStore := blob.NewLocalBlobStore(blob.LocalBlobStoreDirectory(filepath.Join(stateDir, "blob")))
	eventService := event.NewEventService(db, events.NewStore(db, logFactory), clk, logFactory)
	runService := run.NewRunService(db, runs.NewStore(db, logFactory), eventService, clk, logFactory)
	artifactService := artifact.NewArtifactService(db, artifacts.NewStore(db, logFactory), blobStore, clk, logFactory)
	pipelineService := pipeline.NewPipelineService(pipeline.NewDefaultPipelineConfig(workDir), logFactory)
	resolverService := resolver.NewResolverService(pipelineService, runService, logFactory)

	workspacesDir := filepath.Join(stateDir, "workspaces")
	executor := runner.NewExecutor(runner.ExecutorConfig{
		WorkDir:    workDir,
		StagingDir: filepath.Join(stateDir, "staging"),
		LogDir:     filepath.Join(stateDir, "logs"),
	}, logFactory)
	orchestrator := runner.NewOrchestrator(runner.OrchestratorConfig{WorkspacesDir: workspacesDir},
		runService, artifactService, eventService, executor, logFactory)
	scheduler := runner.NewScheduler(orchestrator, runner.SchedulerConfig{ParallelJobs: 2}, logFactory)

	return &testEnv{
		workDir:         workDir,
		workspacesDir:   workspacesDir,
		scheduler:       scheduler,
		queueService:    queue.NewQueueService(pipelineService, resolverService, eventService, scheduler, logFactory),
		runService:      runService,
		artifactService: artifactService,
		eventService:    eventService,
	}, cleanup
}

// execute runs a plan for root to completion and returns the runs of the plan by job id.
func (e *testEnv) execute(t *testing.T, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, map[models.JobID]*models.Run) {
	e.scheduler.Start()
	plan, err := e.queueService.Enqueue(context.Background(), root, opts)
	require.NoError(t, err)
	e.scheduler.StopWhenQuiet()

	planRuns, err := e.runService.ListByPlan(context.Background(), nil, plan.ID)
	require.NoError(t, err)
	byJob := make(map[models.JobID]*models.Run, len(planRuns))
	for _, r := range planRuns {
		byJob[r.JobID] = r
		require.True(t, r.Status.HasFinished(), "run of %s is %s", r.JobID, r.Status)
	}
	return plan, byJob
}

func (e *testEnv) readWorkspaceFile(t *testing.T, jobID models.JobID, relPath string) string {
	data, err := os.ReadFile(filepath.Join(runner.WorkspaceDir(e.workspacesDir, jobID), filepath.FromSlash(relPath)))
	require.NoError(t, err)
	return string(data)
}

const buildPipeline = `
jobs:
  - id: compile
    params:
      version: "1.0"
    commands:
      - "mkdir -p out"
      - "echo binary-${{ params.version }} > out/app"
    artifactRules: out/**
  - id: package
    commands:
      - "cat bin/app > package.txt"
      - "echo ${{ jobs.compile.run_id }} >> package.txt"
    artifactRules: package.txt
    dependencies:
      - target: compile
        artifacts:
          cleanDestination: true
          artifactRules: out/** => bin
`

func TestPlanSucceeds(t *testing.T) {
	env, cleanup := newTestEnv(t, buildPipeline)
	defer cleanup()

	// A stale file in the destination must not survive the transfer
	staleFile := filepath.Join(runner.WorkspaceDir(env.workspacesDir, "package"), "bin", "stale")
	require.NoError(t, os.MkdirAll(filepath.Dir(staleFile), 0755))
	require.NoError(t, os.WriteFile(staleFile, []byte("stale"), 0644))

	plan, planRuns := env.execute(t, "package", models.PlanOptions{})
	require.Len(t, planRuns, 2)
	compile, pkg := planRuns["compile"], planRuns["package"]
	require.Equal(t, models.RunStatusSucceeded, compile.Status)
	require.Equal(t, models.RunStatusSucceeded, pkg.Status)
	require.NotNil(t, pkg.Timings.BlockedAt)
	require.NotNil(t, pkg.Timings.RunningAt)
	require.Nil(t, compile.Timings.BlockedAt, "a job without links never blocks")

	require.Len(t, pkg.Dependencies, 1)
	require.Equal(t, compile.ID, pkg.Dependencies[0].RunID)
	require.False(t, pkg.Dependencies[0].Reused)
	require.Equal(t, 1, pkg.Dependencies[0].ArtifactsTransferred)

	require.Equal(t, "binary-1.0\n"+compile.ID.String()+"\n", env.readWorkspaceFile(t, "package", "package.txt"))
	_, err := os.Stat(staleFile)
	require.True(t, os.IsNotExist(err))

	published, err := env.artifactService.ListByRun(context.Background(), nil, pkg.ID)
	require.NoError(t, err)
	require.Len(t, published, 1)
	require.Equal(t, "package.txt", published[0].Path)

	planEvents, err := env.eventService.FetchEvents(context.Background(), plan.ID, 0, 100)
	require.NoError(t, err)
	require.Equal(t, models.PlanQueuedEvent, planEvents[0].Type)
	last := planEvents[len(planEvents)-1]
	require.Equal(t, models.PlanFinishedEvent, last.Type)
	require.Equal(t, models.RunStatusSucceeded, last.Status)
}

func TestReuseExisting(t *testing.T) {
	env, cleanup := newTestEnv(t, buildPipeline)
	defer cleanup()

	_, first := env.execute(t, "package", models.PlanOptions{})
	plan, second := env.execute(t, "package", models.PlanOptions{})

	require.Equal(t, models.StepActionReuse, plan.Step("compile").Action)
	require.Len(t, second, 1, "no new run of compile is scheduled")
	pkg := second["package"]
	require.Equal(t, models.RunStatusSucceeded, pkg.Status)
	require.Len(t, pkg.Dependencies, 1)
	require.Equal(t, first["compile"].ID, pkg.Dependencies[0].RunID)
	require.True(t, pkg.Dependencies[0].Reused)
	require.Equal(t, 1, pkg.Dependencies[0].ArtifactsTransferred)

	// A param override changes the fingerprint, so compile is built again
	plan, third := env.execute(t, "package", models.PlanOptions{Params: models.Params{"version": "2.0"}})
	require.Equal(t, models.StepActionBuild, plan.Step("compile").Action)
	require.Len(t, third, 2)
	require.Contains(t, env.readWorkspaceFile(t, "package", "package.txt"), "binary-2.0")
}

const failingPipeline = `
jobs:
  - id: compile
    commands:
      - "exit 3"
  - id: blocked
    commands:
      - "touch ran"
    dependencies:
      - target: compile
        onDependencyFailure: FAIL_TO_START
  - id: dependent
    commands:
      - "touch ran"
    dependencies:
      - target: compile
        onDependencyFailure: FAIL_DEPENDENT
  - id: ignoring
    commands:
      - "touch ran"
    dependencies:
      - target: compile
        onDependencyFailure: IGNORE
        artifacts:
          artifactRules: out/**
  - id: release
    commands:
      - "true"
    dependencies:
      - target: blocked
        onDependencyFailure: IGNORE
      - target: dependent
        onDependencyFailure: IGNORE
      - target: ignoring
`

func TestFailurePolicies(t *testing.T) {
	env, cleanup := newTestEnv(t, failingPipeline)
	defer cleanup()

	_, planRuns := env.execute(t, "release", models.PlanOptions{})
	require.Len(t, planRuns, 5)

	compile := planRuns["compile"]
	require.Equal(t, models.RunStatusFailed, compile.Status)
	require.NotNil(t, compile.Error)

	blocked := planRuns["blocked"]
	require.Equal(t, models.RunStatusNotStarted, blocked.Status)
	require.Equal(t, gerror.ErrCodeDependencyBlocked, blocked.Error.Code())
	require.Nil(t, blocked.Timings.RunningAt, "a run that is not started never runs")
	require.Len(t, blocked.Dependencies, 1)
	require.Equal(t, models.RunStatusFailed, blocked.Dependencies[0].Status)

	dependent := planRuns["dependent"]
	require.Equal(t, models.RunStatusFailed, dependent.Status)
	require.Equal(t, gerror.ErrCodeDependencyFailed, dependent.Error.Code())
	require.Nil(t, dependent.Timings.RunningAt)

	ignoring := planRuns["ignoring"]
	require.Equal(t, models.RunStatusSucceeded, ignoring.Status)
	require.Equal(t, 0, ignoring.Dependencies[0].ArtifactsTransferred)
	require.Equal(t, "", env.readWorkspaceFile(t, "ignoring", "ran"))

	// release ignores blocked and dependent, but its link to ignoring uses the default policy, which succeeded
	require.Equal(t, models.RunStatusSucceeded, planRuns["release"].Status)
	_, err := os.Stat(filepath.Join(runner.WorkspaceDir(env.workspacesDir, "blocked"), "ran"))
	require.True(t, os.IsNotExist(err))
}

const missingArtifactPipeline = `
jobs:
  - id: compile
    commands:
      - "mkdir -p out && echo binary > out/app"
    artifactRules: out/**
  - id: package
    commands:
      - "true"
    dependencies:
      - target: compile
        reuseBuilds: ALWAYS_REBUILD
        artifacts:
          artifactRules: |
            out/app => bin
            docs/** => doc
`

func TestTransferArtifactNotFound(t *testing.T) {
	env, cleanup := newTestEnv(t, missingArtifactPipeline)
	defer cleanup()

	_, planRuns := env.execute(t, "package", models.PlanOptions{})
	require.Equal(t, models.RunStatusSucceeded, planRuns["compile"].Status)
	pkg := planRuns["package"]
	require.Equal(t, models.RunStatusFailed, pkg.Status)
	require.Equal(t, gerror.ErrCodeArtifactNotFound, pkg.Error.Code())
	require.Contains(t, pkg.Error.Error(), "docs/**")

	// ALWAYS_REBUILD schedules a fresh compile run every time
	_, planRuns = env.execute(t, "package", models.PlanOptions{})
	require.Len(t, planRuns, 2)
}

func TestSubmitAfterStop(t *testing.T) {
	env, cleanup := newTestEnv(t, buildPipeline)
	defer cleanup()

	env.scheduler.Start()
	env.scheduler.Stop()
	_, err := env.queueService.Enqueue(context.Background(), "compile", models.PlanOptions{})
	require.Error(t, err)
}

func TestJobWithoutDependencies(t *testing.T) {
	env, cleanup := newTestEnv(t, `
jobs:
  - id: lint
    commands:
      - "echo clean > report.txt"
`)
	defer cleanup()

	_, planRuns := env.execute(t, "lint", models.PlanOptions{})
	lint := planRuns["lint"]
	require.Equal(t, models.RunStatusSucceeded, lint.Status, "error: %v", lint.Error)
	require.Equal(t, runner.WorkspaceDir(env.workspacesDir, "lint"), lint.Workspace)
	require.Equal(t, "clean\n", env.readWorkspaceFile(t, "lint", "report.txt"))
}

const outputsPipeline = `
jobs:
  - id: compile
    params:
      mode: build
    commands:
      - "if [ \"${{ params.mode }}\" = build ]; then mkdir -p out && echo app > out/app; fi"
    artifactRules: out/**
`

func TestOutputsOfPreviousRunAreNotRepublished(t *testing.T) {
	env, cleanup := newTestEnv(t, outputsPipeline)
	defer cleanup()

	_, planRuns := env.execute(t, "compile", models.PlanOptions{})
	first := planRuns["compile"]
	require.Equal(t, models.RunStatusSucceeded, first.Status)

	// This run produces nothing, so the output left in the workspace by the first run must not be published
	_, planRuns = env.execute(t, "compile", models.PlanOptions{Params: models.Params{"mode": "skip"}})
	second := planRuns["compile"]
	require.NotEqual(t, first.ID, second.ID)
	require.Equal(t, models.RunStatusFailed, second.Status)
	require.Equal(t, gerror.ErrCodeArtifactNotFound, second.Error.Code())

	published, err := env.artifactService.ListByRun(context.Background(), nil, second.ID)
	require.NoError(t, err)
	require.Empty(t, published)
}

const ignoredCleanPipeline = `
jobs:
  - id: compile
    params:
      mode: build
    commands:
      - "if [ \"${{ params.mode }}\" = fail ]; then exit 1; fi"
      - "mkdir -p out && echo app > out/app"
    artifactRules: out/**
  - id: ignoring
    commands:
      - "ls bin > seen.txt"
    dependencies:
      - target: compile
        onDependencyFailure: IGNORE
        artifacts:
          cleanDestination: true
          artifactRules: out/** => bin
`

func TestCleanDestinationWhenIgnoredTargetFails(t *testing.T) {
	env, cleanup := newTestEnv(t, ignoredCleanPipeline)
	defer cleanup()

	_, planRuns := env.execute(t, "ignoring", models.PlanOptions{})
	require.Equal(t, models.RunStatusSucceeded, planRuns["ignoring"].Status)
	require.Equal(t, "app\n", env.readWorkspaceFile(t, "ignoring", "seen.txt"))

	// compile fails and is ignored; the artifacts transferred by the previous run must not be left behind
	_, planRuns = env.execute(t, "ignoring", models.PlanOptions{Params: models.Params{"mode": "fail"}})
	require.Equal(t, models.RunStatusFailed, planRuns["compile"].Status)
	ignoring := planRuns["ignoring"]
	require.Equal(t, models.RunStatusSucceeded, ignoring.Status)
	require.Equal(t, 0, ignoring.Dependencies[0].ArtifactsTransferred)
	require.Equal(t, "", env.readWorkspaceFile(t, "ignoring", "seen.txt"))
}
