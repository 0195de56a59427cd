package artifacts_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store/artifacts"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

func TestArtifact(t *testing.T) {
	ctx := context.Background()
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	defer cleanup()

	runStore := runs.NewStore(db, logFactory)
	artifactStore := artifacts.NewStore(db, logFactory)

	now := models.NewTime(time.Now())
	run := models.NewRun(now, models.NewPlanID(), "compile", models.Params{}, "f1", models.HashTypeFNV)
	require.NoError(t, runStore.Create(ctx, nil, run))

	paths := []string{"dist/lib/b.so", "dist/app", "dist/lib/a.so"}
	for _, p := range paths {
		artifact := models.NewArtifact(now, run.ID, p, 42, models.HashTypeBlake2b, "deadbeef", "application/octet-stream", "runs/"+run.ID.String()+"/"+p)
		require.NoError(t, artifactStore.Create(ctx, nil, artifact))

		read, err := artifactStore.Read(ctx, nil, artifact.ID)
		require.NoError(t, err)
		require.Equal(t, p, read.Path)
		require.Equal(t, uint64(42), read.Size)
		require.Equal(t, artifact.BlobKey, read.BlobKey)
	}

	// A run cannot publish two artifacts at the same path
	duplicate := models.NewArtifact(now, run.ID, "dist/app", 1, models.HashTypeBlake2b, "00", "", "runs/x")
	err = artifactStore.Create(ctx, nil, duplicate)
	require.Error(t, err)
	require.True(t, gerror.IsAlreadyExists(err))

	list, err := artifactStore.ListByRun(ctx, nil, run.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "dist/app", list[0].Path)
	require.Equal(t, "dist/lib/a.so", list[1].Path)
	require.Equal(t, "dist/lib/b.so", list[2].Path)

	list, err = artifactStore.ListByRun(ctx, nil, models.NewRunID())
	require.NoError(t, err)
	require.Empty(t, list)

	_, err = artifactStore.Read(ctx, nil, models.NewArtifactID())
	require.True(t, gerror.IsNotFound(err))
}
