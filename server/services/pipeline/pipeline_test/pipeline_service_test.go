package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/services/pipeline"
)

const compileYAML = `
version: "1"
jobs:
  - id: compile
    params:
      GOOS: linux
    commands:
      - go build -o out/app ./...
    artifactRules: out/app => bin
`

const packageJSON = `{
  "jobs": [
    {
      "id": "package",
      "commands": ["tar czf app.tgz bin"],
      "artifactRules": "app.tgz",
      "dependencies": [
        {"target": "compile", "artifacts": {"cleanDestination": true, "artifactRules": "bin/** => bin"}}
      ]
    }
  ]
}`

func writeFile(t *testing.T, path string, content string) {
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newPipelineService(t *testing.T, workDir string, paths ...string) *pipeline.PipelineService {
	config := pipeline.NewDefaultPipelineConfig(workDir)
	config.Paths = paths
	return pipeline.NewPipelineService(config, logger.NoOpLogFactory)
}

func TestLoadDefaultFile(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, models.DefaultPipelineFileName), compileYAML)

	service := newPipelineService(t, workDir)
	p, err := service.Current(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, p.Len())
	job, err := p.Job("compile")
	require.NoError(t, err)
	require.Equal(t, "linux", job.Params["GOOS"])

	// Current returns the cached pipeline until Load is called again
	again, err := service.Current(context.Background())
	require.NoError(t, err)
	require.Same(t, p, again)
}

func TestLoadMultipleFiles(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "ci", "compile.yml"), compileYAML)
	writeFile(t, filepath.Join(workDir, "ci", "package.json"), packageJSON)
	writeFile(t, filepath.Join(workDir, "ci", "README.md"), "not a pipeline file")

	service := newPipelineService(t, workDir, "ci")
	p, err := service.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, p.Len())
	require.Len(t, p.Files, 2)

	// The link crosses files by absolute id
	closure, err := p.Closure("package")
	require.NoError(t, err)
	require.Len(t, closure, 2)
	require.Equal(t, models.JobID("compile"), closure[0].ID)
	require.Equal(t, models.JobID("package"), closure[1].ID)
	require.Equal(t, filepath.Join(workDir, "ci", "package.json"), closure[1].SourceFile)
}

func TestLoadErrors(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, "package.json"), packageJSON)
	writeFile(t, filepath.Join(workDir, "broken.yml"), "jobs: [")
	writeFile(t, filepath.Join(workDir, "empty", "notes.txt"), "")

	_, err := newPipelineService(t, workDir, "package.json").Load(context.Background())
	require.True(t, gerror.IsUnresolvedDependency(err))

	_, err = newPipelineService(t, workDir, "broken.yml").Load(context.Background())
	require.True(t, gerror.IsValidationFailed(err))

	_, err = newPipelineService(t, workDir, "missing.yml").Load(context.Background())
	require.True(t, gerror.IsNotFound(err))

	_, err = newPipelineService(t, workDir, "empty").Load(context.Background())
	require.True(t, gerror.IsNotFound(err))
}

func TestFingerprint(t *testing.T) {
	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, models.DefaultPipelineFileName), compileYAML)
	service := newPipelineService(t, workDir)
	p, err := service.Load(context.Background())
	require.NoError(t, err)
	job, err := p.Job("compile")
	require.NoError(t, err)

	f1, hashType, err := service.Fingerprint(job, job.Params)
	require.NoError(t, err)
	require.Equal(t, models.HashTypeFNV, hashType)
	require.Len(t, f1, 16)

	f2, _, err := service.Fingerprint(job, job.Params.Merge(models.Params{"GOOS": "linux"}))
	require.NoError(t, err)
	require.Equal(t, f1, f2, "an override equal to the default must not change the fingerprint")

	f3, _, err := service.Fingerprint(job, job.Params.Merge(models.Params{"GOOS": "darwin"}))
	require.NoError(t, err)
	require.NotEqual(t, f1, f3)

	moved := *job
	moved.SourceFile = "elsewhere.yml"
	f4, _, err := service.Fingerprint(&moved, job.Params)
	require.NoError(t, err)
	require.Equal(t, f1, f4)

	renamed := *job
	renamed.Name = "Compile the app"
	renamed.Description = "Builds out/app"
	f6, _, err := service.Fingerprint(&renamed, job.Params)
	require.NoError(t, err)
	require.Equal(t, f1, f6, "display fields must not change the fingerprint")

	changed := moved
	changed.Commands = []string{"go build -race ./..."}
	f5, _, err := service.Fingerprint(&changed, job.Params)
	require.NoError(t, err)
	require.NotEqual(t, f1, f5)
}
