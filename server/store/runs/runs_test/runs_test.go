package runs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

func newRunStore(t *testing.T) (*runs.RunStore, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	return runs.NewStore(db, logFactory), cleanup
}

func TestRunCreateReadUpdate(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newRunStore(t)
	defer cleanup()

	now := models.NewTime(time.Now())
	run := models.NewRun(now, models.NewPlanID(), "compile", models.Params{"env.GOOS": "linux"}, "abc123", models.HashTypeFNV)
	err := store.Create(ctx, nil, run)
	require.NoError(t, err)
	require.NotEmpty(t, run.ETag)

	read, err := store.Read(ctx, nil, run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, read.ID)
	require.Equal(t, models.JobID("compile"), read.JobID)
	require.Equal(t, models.RunStatusPending, read.Status)
	require.Equal(t, "linux", read.Params["env.GOOS"])
	require.Equal(t, run.ETag, read.ETag)
	require.NotNil(t, read.Timings.PendingAt)
	require.Nil(t, read.Error)

	read.Status = models.RunStatusFailed
	read.Error = models.NewError(gerror.NewErrDependencyFailed("lint", models.RunStatusFailed.String()))
	read.Dependencies = models.RunDependencies{{TargetJobID: "lint", RunID: models.NewRunID(), Status: models.RunStatusFailed}}
	err = store.Update(ctx, nil, read)
	require.NoError(t, err)
	require.NotEqual(t, run.ETag, read.ETag)

	updated, err := store.Read(ctx, nil, run.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusFailed, updated.Status)
	require.NotNil(t, updated.Error)
	require.Equal(t, gerror.ErrCodeDependencyFailed, updated.Error.Code())
	require.Len(t, updated.Dependencies, 1)
	require.Equal(t, models.JobID("lint"), updated.Dependencies[0].TargetJobID)

	// Updating with the stale ETag must fail
	err = store.Update(ctx, nil, run)
	require.Error(t, err)
	require.True(t, gerror.IsOptimisticLockFailed(err))
}

func TestRunReadNotFound(t *testing.T) {
	store, cleanup := newRunStore(t)
	defer cleanup()

	_, err := store.Read(context.Background(), nil, models.NewRunID())
	require.Error(t, err)
	require.True(t, gerror.IsNotFound(err))
}

func TestRunReadLatestSucceeded(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newRunStore(t)
	defer cleanup()

	planID := models.NewPlanID()
	start := time.Now().Add(-time.Hour)
	create := func(offset time.Duration, jobID models.JobID, fingerprint string, status models.RunStatus) *models.Run {
		run := models.NewRun(models.NewTime(start.Add(offset)), planID, jobID, models.Params{}, fingerprint, models.HashTypeFNV)
		run.Status = status
		require.NoError(t, store.Create(ctx, nil, run))
		return run
	}

	create(1*time.Minute, "compile", "f1", models.RunStatusSucceeded)
	want := create(2*time.Minute, "compile", "f1", models.RunStatusSucceeded)
	create(3*time.Minute, "compile", "f1", models.RunStatusFailed)
	create(4*time.Minute, "compile", "f2", models.RunStatusSucceeded)
	create(5*time.Minute, "package", "f1", models.RunStatusSucceeded)

	found, err := store.ReadLatestSucceeded(ctx, nil, "compile", "f1")
	require.NoError(t, err)
	require.Equal(t, want.ID, found.ID)

	_, err = store.ReadLatestSucceeded(ctx, nil, "compile", "f3")
	require.True(t, gerror.IsNotFound(err))
}

func TestRunList(t *testing.T) {
	ctx := context.Background()
	store, cleanup := newRunStore(t)
	defer cleanup()

	planA, planB := models.NewPlanID(), models.NewPlanID()
	start := time.Now().Add(-time.Hour)
	var created []*models.Run
	for i := 0; i < 5; i++ {
		planID := planA
		if i%2 == 1 {
			planID = planB
		}
		run := models.NewRun(models.NewTime(start.Add(time.Duration(i)*time.Minute)), planID, "compile", models.Params{}, "f1", models.HashTypeFNV)
		require.NoError(t, store.Create(ctx, nil, run))
		created = append(created, run)
	}

	page, hasMore, err := store.ListByJob(ctx, nil, "compile", models.NewPagination(2, 0))
	require.NoError(t, err)
	require.True(t, hasMore)
	require.Len(t, page, 2)
	require.Equal(t, created[4].ID, page[0].ID)
	require.Equal(t, created[3].ID, page[1].ID)

	page, hasMore, err = store.ListByJob(ctx, nil, "compile", models.NewPagination(2, 4))
	require.NoError(t, err)
	require.False(t, hasMore)
	require.Len(t, page, 1)
	require.Equal(t, created[0].ID, page[0].ID)

	planRuns, err := store.ListByPlan(ctx, nil, planA)
	require.NoError(t, err)
	require.Len(t, planRuns, 3)
	require.Equal(t, created[0].ID, planRuns[0].ID)
	require.Equal(t, created[4].ID, planRuns[2].ID)
}
