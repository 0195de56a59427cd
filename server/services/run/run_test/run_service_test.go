package run_test

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services/event"
	"github.com/buildbeaver/depchain/server/services/run"
	"github.com/buildbeaver/depchain/server/store/events"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

type testEnv struct {
	runService   *run.RunService
	eventService *event.EventService
	clock        *clock.Mock
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	clk := clock.NewMock()
	clk.Set(time.Date(2022, 11, 1, 9, 0, 0, 0, time.UTC))
	eventService := event.NewEventService(db, events.NewStore(db, logFactory), clk, logFactory)
	return &testEnv{
		runService:   run.NewRunService(db, runs.NewStore(db, logFactory), eventService, clk, logFactory),
		eventService: eventService,
		clock:        clk,
	}, cleanup
}

func buildStep(jobID models.JobID, fingerprint string) *models.PlanStep {
	return &models.PlanStep{
		JobID:               jobID,
		Action:              models.StepActionBuild,
		Params:              models.Params{"env.GOOS": "linux"},
		Fingerprint:         fingerprint,
		FingerprintHashType: models.HashTypeFNV,
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	planID := models.NewPlanID()
	r, err := env.runService.Create(ctx, nil, planID, buildStep("compile", "f1"))
	require.NoError(t, err)
	require.Equal(t, models.RunStatusPending, r.Status)
	require.NotNil(t, r.Timings.PendingAt)

	for _, status := range []models.RunStatus{models.RunStatusBlockedOnDependency, models.RunStatusRunning, models.RunStatusSucceeded} {
		env.clock.Add(time.Minute)
		r, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: status})
		require.NoError(t, err)
		require.Equal(t, status, r.Status)
	}
	require.NotNil(t, r.Timings.BlockedAt)
	require.NotNil(t, r.Timings.RunningAt)
	require.NotNil(t, r.Timings.FinishedAt)
	require.Equal(t, 2*time.Minute, r.Timings.FinishedAt.Sub(r.Timings.BlockedAt.Time))

	// Every status, including the initial pending one, was published as an event
	evts, err := env.eventService.FetchEvents(ctx, planID, 0, 10)
	require.NoError(t, err)
	require.Len(t, evts, 4)
	require.Equal(t, models.RunStatusPending, evts[0].Status)
	require.Equal(t, models.RunStatusSucceeded, evts[3].Status)
	require.Equal(t, r.ID, evts[3].RunID)

	// Updating to the current status is a no-op
	_, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: models.RunStatusSucceeded})
	require.NoError(t, err)

	// Terminal runs cannot move again
	_, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: models.RunStatusRunning})
	require.True(t, gerror.IsInvalidStatusTransition(err))
	_, err = env.runService.UpdateWorkspace(ctx, nil, r.ID, dto.UpdateRunWorkspace{Workspace: "/tmp/elsewhere"})
	require.True(t, gerror.IsValidationFailed(err))
}

func TestRunInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	r, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f1"))
	require.NoError(t, err)

	// A run must run before it can succeed
	_, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: models.RunStatusSucceeded})
	require.True(t, gerror.IsInvalidStatusTransition(err))
	// Only blocked runs can be left not started
	_, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: models.RunStatusNotStarted})
	require.True(t, gerror.IsInvalidStatusTransition(err))

	blocked, err := env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: models.RunStatusBlockedOnDependency})
	require.NoError(t, err)
	notStarted, err := env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{
		Status: models.RunStatusNotStarted,
		Error:  models.NewError(gerror.NewErrDependencyBlocked("lint", models.RunStatusFailed.String())),
		ETag:   blocked.ETag,
	})
	require.NoError(t, err)
	require.Equal(t, gerror.ErrCodeDependencyBlocked, notStarted.Error.Code())

	read, err := env.runService.Read(ctx, nil, r.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusNotStarted, read.Status)
	require.Nil(t, read.Timings.RunningAt)
	require.NotNil(t, read.Timings.FinishedAt)
}

func TestRunOptimisticLock(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	r, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f1"))
	require.NoError(t, err)
	stale := r.ETag

	r, err = env.runService.UpdateWorkspace(ctx, nil, r.ID, dto.UpdateRunWorkspace{Workspace: "/work/compile", ETag: r.ETag})
	require.NoError(t, err)
	require.Equal(t, "/work/compile", r.Workspace)

	_, err = env.runService.UpdateDependencies(ctx, nil, r.ID, dto.UpdateRunDependencies{ETag: stale})
	require.True(t, gerror.IsOptimisticLockFailed(err))

	deps := models.RunDependencies{{TargetJobID: "lint", RunID: models.NewRunID(), Status: models.RunStatusSucceeded, Reused: true}}
	r, err = env.runService.UpdateDependencies(ctx, nil, r.ID, dto.UpdateRunDependencies{Dependencies: deps, ETag: models.ETagAny})
	require.NoError(t, err)
	require.Len(t, r.Dependencies, 1)
	require.True(t, r.Dependencies[0].Reused)
}

func TestFindReusable(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	succeed := func(r *models.Run) *models.Run {
		var err error
		for _, status := range []models.RunStatus{models.RunStatusRunning, models.RunStatusSucceeded} {
			r, err = env.runService.UpdateStatus(ctx, nil, r.ID, dto.UpdateRunStatus{Status: status})
			require.NoError(t, err)
		}
		return r
	}

	_, err := env.runService.FindReusable(ctx, nil, "compile", "f1")
	require.True(t, gerror.IsNotFound(err))

	first, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f1"))
	require.NoError(t, err)
	succeed(first)

	env.clock.Add(time.Hour)
	second, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f1"))
	require.NoError(t, err)
	succeed(second)

	// A newer failed run and a run with another fingerprint do not count
	env.clock.Add(time.Hour)
	failed, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f1"))
	require.NoError(t, err)
	_, err = env.runService.UpdateStatus(ctx, nil, failed.ID, dto.UpdateRunStatus{
		Status: models.RunStatusFailed,
		Error:  models.NewError(gerror.NewErrValidationFailed("setup failed")),
	})
	require.NoError(t, err)
	other, err := env.runService.Create(ctx, nil, models.NewPlanID(), buildStep("compile", "f2"))
	require.NoError(t, err)
	succeed(other)

	reusable, err := env.runService.FindReusable(ctx, nil, "compile", "f1")
	require.NoError(t, err)
	require.Equal(t, second.ID, reusable.ID)

	history, more, err := env.runService.ListByJob(ctx, nil, "compile", models.NewPagination(3, 0))
	require.NoError(t, err)
	require.True(t, more)
	require.Len(t, history, 3)
}

func TestCreateRejectsReuseSteps(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	step := buildStep("compile", "f1")
	step.Action = models.StepActionReuse
	_, err := env.runService.Create(context.Background(), nil, models.NewPlanID(), step)
	require.True(t, gerror.IsValidationFailed(err))
}
