package artifact_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/services/artifact"
	"github.com/buildbeaver/depchain/server/services/blob"
	"github.com/buildbeaver/depchain/server/store/artifacts"
	"github.com/buildbeaver/depchain/server/store/runs"
	"github.com/buildbeaver/depchain/server/store/store_test"
)

// pngHeader is enough of a PNG file for MIME detection.
var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 0x49, 0x48, 0x44, 0x52}

type testEnv struct {
	service   *artifact.ArtifactService
	blobStore *blob.LocalBlobStore
	runStore  *runs.RunStore
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	logRegistry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(logRegistry)
	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	blobStore := blob.NewLocalBlobStore(blob.LocalBlobStoreDirectory(t.TempDir()))
	clk := clock.NewMock()
	clk.Set(time.Now())
	return &testEnv{
		service:   artifact.NewArtifactService(db, artifacts.NewStore(db, logFactory), blobStore, clk, logFactory),
		blobStore: blobStore,
		runStore:  runs.NewStore(db, logFactory),
	}, cleanup
}

func (e *testEnv) createRun(t *testing.T, jobID models.JobID) *models.Run {
	run := models.NewRun(models.NewTime(time.Now()), models.NewPlanID(), jobID, models.Params{}, "f1", models.HashTypeFNV)
	require.NoError(t, e.runStore.Create(context.Background(), nil, run))
	return run
}

func writeFiles(t *testing.T, root string, files map[string]string) {
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

// listFiles returns the slash-separated paths of the files under root, sorted.
func listFiles(t *testing.T, root string) []string {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(files)
	return files
}

func mustRules(t *testing.T, str string) models.ArtifactRules {
	rules, err := models.ParseArtifactRules(str)
	require.NoError(t, err)
	return rules
}

func artifactLink(t *testing.T, clean bool, rules string) *models.DependencyLink {
	return &models.DependencyLink{
		Owner:               "package",
		Target:              "compile",
		ReuseBuilds:         models.DefaultReusePolicy,
		OnDependencyFailure: models.DefaultFailurePolicy,
		Artifacts:           &models.ArtifactDependency{CleanDestination: clean, Rules: mustRules(t, rules)},
	}
}

// publishCompile publishes the output of a compile run and returns the run.
func (e *testEnv) publishCompile(t *testing.T) *models.Run {
	source := t.TempDir()
	writeFiles(t, source, map[string]string{
		"out/app":         string(pngHeader),
		"out/lib/util.so": "shared object",
		"out/debug.log":   "noise",
		"src/main.go":     "package main",
	})
	run := e.createRun(t, "compile")
	published, err := e.service.Publish(context.Background(), run, source, mustRules(t, "out/** => dist\n-:out/*.log"))
	require.NoError(t, err)
	require.Len(t, published, 2)
	return run
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	run := env.publishCompile(t)
	listed, err := env.service.ListByRun(ctx, nil, run.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	require.Equal(t, "dist/app", listed[0].Path)
	require.Equal(t, "image/png", listed[0].Mime)
	require.Equal(t, uint64(len(pngHeader)), listed[0].Size)
	require.Equal(t, models.HashTypeBlake2b, listed[0].HashType)
	require.Len(t, listed[0].Hash, 64)
	require.Equal(t, "dist/lib/util.so", listed[1].Path)
	require.Equal(t, blob.RunOutputKeyPrefix(run.ID)+"dist/lib/util.so", listed[1].BlobKey)

	reader, err := env.service.GetArtifactData(ctx, listed[1], 7, -1)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	require.Equal(t, "object", string(data))

	_, err = env.service.GetArtifactData(ctx, listed[1], 1000, -1)
	require.True(t, gerror.IsValidationFailed(err))
}

func TestPublishKeepsWorkspacePaths(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	workspace := t.TempDir()
	writeFiles(t, workspace, map[string]string{
		"out/app":         "binary",
		"out/lib/util.so": "shared object",
		"out/debug.log":   "noise",
	})
	run := env.createRun(t, "compile")
	published, err := env.service.Publish(ctx, run, workspace, mustRules(t, "out/**, -:out/*.log"))
	require.NoError(t, err)
	require.Len(t, published, 2)
	require.Equal(t, "out/app", published[0].Path)
	require.Equal(t, "out/lib/util.so", published[1].Path)

	// Rules written against the producer's workspace paths match what was published
	dependent := t.TempDir()
	n, err := env.service.Transfer(ctx, run, artifactLink(t, false, "out/** => bin"), dependent)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"bin/app", "bin/lib/util.so"}, listFiles(t, dependent))
}

func TestRemoveOutputs(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	workspace := t.TempDir()
	writeFiles(t, workspace, map[string]string{
		"out/app":       "binary from an earlier run",
		"out/debug.log": "noise",
		"bin/input":     "transferred input",
	})
	removed, err := env.service.RemoveOutputs(ctx, workspace, mustRules(t, "out/**, -:out/*.log"))
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, []string{"bin/input", "out/debug.log"}, listFiles(t, workspace))

	// With the old output gone there is nothing left to publish
	_, err = env.service.Publish(ctx, env.createRun(t, "compile"), workspace, mustRules(t, "out/**, -:out/*.log"))
	require.True(t, gerror.IsArtifactNotFound(err))

	removed, err = env.service.RemoveOutputs(ctx, filepath.Join(workspace, "missing"), mustRules(t, "out/**"))
	require.NoError(t, err)
	require.Equal(t, 0, removed)
}

func TestPublishNoMatches(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	workspace := t.TempDir()
	writeFiles(t, workspace, map[string]string{"out/app": "binary"})
	run := env.createRun(t, "compile")

	_, err := env.service.Publish(context.Background(), run, workspace, mustRules(t, "out/app, target/*.jar"))
	require.True(t, gerror.IsArtifactNotFound(err))
	require.Contains(t, err.Error(), "target/*.jar")

	// A rule whose only matches are excluded matches nothing
	_, err = env.service.Publish(context.Background(), run, workspace, mustRules(t, "out/*, -:out/app"))
	require.True(t, gerror.IsArtifactNotFound(err))

	// Jobs without artifact rules publish nothing
	published, err := env.service.Publish(context.Background(), run, workspace, nil)
	require.NoError(t, err)
	require.Empty(t, published)
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	source := env.publishCompile(t)
	workspace := t.TempDir()
	n, err := env.service.Transfer(ctx, source, artifactLink(t, false, "dist/** => bin"), workspace)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []string{"bin/app", "bin/lib/util.so"}, listFiles(t, workspace))
	data, err := os.ReadFile(filepath.Join(workspace, "bin", "lib", "util.so"))
	require.NoError(t, err)
	require.Equal(t, "shared object", string(data))

	// Links without artifacts transfer nothing
	n, err = env.service.Transfer(ctx, source, &models.DependencyLink{Owner: "package", Target: "compile"}, workspace)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestTransferCleanDestination(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	source := env.publishCompile(t)
	workspace := t.TempDir()
	writeFiles(t, workspace, map[string]string{
		"bin/stale.txt":      "left over from a previous run",
		"bin/old/util.so":    "old",
		"scripts/package.sh": "tar czf app.tgz bin",
	})

	for _, clean := range []bool{false, true} {
		link := artifactLink(t, clean, "dist/** => bin")
		require.NoError(t, env.service.CleanDestinations(ctx, []*models.DependencyLink{link}, workspace))
		_, err := env.service.Transfer(ctx, source, link, workspace)
		require.NoError(t, err)
		if !clean {
			require.Contains(t, listFiles(t, workspace), "bin/stale.txt")
		}
	}

	// The destination contains exactly the files matching the current rules; other directories are untouched
	require.Equal(t, []string{"bin/app", "bin/lib/util.so", "scripts/package.sh"}, listFiles(t, workspace))
}

func TestTransferArtifactNotFound(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	source := env.publishCompile(t)
	_, err := env.service.Transfer(context.Background(), source, artifactLink(t, false, "dist/app, dist/*.jar => lib"), t.TempDir())
	require.True(t, gerror.IsArtifactNotFound(err))
	require.True(t, strings.Contains(err.Error(), "dist/*.jar"))
}

func TestTransferVerifiesContent(t *testing.T) {
	ctx := context.Background()
	env, cleanup := newTestEnv(t)
	defer cleanup()

	source := env.publishCompile(t)
	err := env.blobStore.PutBlob(ctx, blob.RunOutputKeyPrefix(source.ID)+"dist/lib/util.so", strings.NewReader("tampered with"))
	require.NoError(t, err)

	workspace := t.TempDir()
	_, err = env.service.Transfer(ctx, source, artifactLink(t, false, "dist/lib/* => lib"), workspace)
	require.True(t, gerror.IsArtifactTransferFailed(err))
	// Nothing is left behind in the workspace for a file that failed verification
	require.NotContains(t, listFiles(t, workspace), "lib/util.so")
}
