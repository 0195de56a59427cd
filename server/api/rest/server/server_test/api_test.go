package api_test

import (
	"context"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/client"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/app/server_test"
)

const testPipeline = `
jobs:
  - id: compile
    name: Compile
    params:
      version: "1.0"
    commands:
      - "mkdir -p out"
      - "echo binary-${{ params.version }} > out/app"
    artifactRules: out/**
  - id: package
    commands:
      - "cat bin/app > package.txt"
    artifactRules: package.txt
    dependencies:
      - target: compile
        artifacts:
          artifactRules: out/** => bin
`

func startTestServer(t *testing.T) (*server_test.TestServer, *client.APIClient, func()) {
	if runtime.GOOS == "windows" {
		t.Skip("commands in these tests require a POSIX shell")
	}
	workDir := t.TempDir()
	err := os.WriteFile(filepath.Join(workDir, models.DefaultPipelineFileName), []byte(testPipeline), 0644)
	require.NoError(t, err)

	app, cleanup, err := server_test.New(server_test.TestConfig(t, workDir))
	require.NoError(t, err)
	app.Start()

	apiClient, err := client.NewAPIClient([]string{app.APIServer.GetServerURL()}, app.LogFactory)
	require.NoError(t, err)
	return app, apiClient, func() {
		require.NoError(t, app.Stop())
		cleanup()
	}
}

// runToCompletion triggers root and waits for the plan to finish, returning the plan and its runs by job id.
func runToCompletion(t *testing.T, apiClient *client.APIClient, root models.JobID, opts models.PlanOptions) (*documents.Plan, map[models.JobID]*documents.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	plan, err := apiClient.TriggerJob(ctx, root, opts)
	require.NoError(t, err)

	var seen []*documents.Event
	finished, err := apiClient.WatchPlan(ctx, plan.ID, func(event *documents.Event) {
		seen = append(seen, event)
	})
	require.NoError(t, err)
	require.Equal(t, models.PlanFinishedEvent, finished.Type)
	require.Equal(t, models.PlanQueuedEvent, seen[0].Type)
	for i := 1; i < len(seen); i++ {
		require.Greater(t, seen[i].SequenceNumber, seen[i-1].SequenceNumber, "events are delivered in order without duplicates")
	}

	runs, err := apiClient.ListPlanRuns(ctx, plan.ID)
	require.NoError(t, err)
	byJob := make(map[models.JobID]*documents.Run, len(runs))
	for _, run := range runs {
		byJob[run.JobID] = run
	}
	return plan, byJob
}

func TestJobsAPI(t *testing.T) {
	ctx := context.Background()
	_, apiClient, cleanup := startTestServer(t)
	defer cleanup()

	jobs, err := apiClient.ListJobs(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, models.JobID("compile"), jobs[0].ID, "jobs are listed dependencies first")
	require.Equal(t, models.JobID("package"), jobs[1].ID)

	job, err := apiClient.GetJob(ctx, "package")
	require.NoError(t, err)
	require.Len(t, job.Dependencies, 1)
	require.Equal(t, models.JobID("compile"), job.Dependencies[0].Target)
	require.Equal(t, models.ReusePolicyReuseExisting, job.Dependencies[0].ReuseBuilds)
	require.Equal(t, models.FailurePolicyFailToStart, job.Dependencies[0].OnDependencyFailure)

	_, err = apiClient.GetJob(ctx, "missing")
	require.Error(t, err)
	require.True(t, gerror.IsNotFound(err), "expected not found, got %v", err)
}

func TestPlanAPI(t *testing.T) {
	ctx := context.Background()
	_, apiClient, cleanup := startTestServer(t)
	defer cleanup()

	plan, err := apiClient.GetPlan(ctx, "package", models.PlanOptions{})
	require.NoError(t, err)
	require.Equal(t, models.JobID("package"), plan.Root)
	require.Len(t, plan.Steps, 2)
	require.Equal(t, models.StepActionBuild, plan.Step("compile").Action)
	require.Equal(t, []models.JobID{"compile"}, plan.Step("package").DependsOn)

	// Planning never creates runs
	runs, _, err := apiClient.ListJobRuns(ctx, "compile", models.NewPagination(10, 0))
	require.NoError(t, err)
	require.Empty(t, runs)

	plan, err = apiClient.GetPlan(ctx, "compile", models.PlanOptions{Params: models.Params{"version": "2.0"}})
	require.NoError(t, err)
	require.Equal(t, "2.0", plan.Step("compile").Params["version"])

	_, err = apiClient.GetPlan(ctx, "missing", models.PlanOptions{})
	require.True(t, gerror.IsNotFound(err), "expected not found, got %v", err)
}

func TestTriggerAndWatch(t *testing.T) {
	ctx := context.Background()
	_, apiClient, cleanup := startTestServer(t)
	defer cleanup()

	_, planRuns := runToCompletion(t, apiClient, "package", models.PlanOptions{})
	require.Len(t, planRuns, 2)
	compile, pkg := planRuns["compile"], planRuns["package"]
	require.Equal(t, models.RunStatusSucceeded, compile.Status)
	require.Equal(t, models.RunStatusSucceeded, pkg.Status)
	require.Len(t, pkg.Dependencies, 1)
	require.Equal(t, compile.ID, pkg.Dependencies[0].RunID)

	run, err := apiClient.GetRun(ctx, pkg.ID)
	require.NoError(t, err)
	require.Equal(t, pkg.ETag, run.ETag)

	artifacts, err := apiClient.ListRunArtifacts(ctx, compile.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 1)
	require.Equal(t, "out/app", artifacts[0].Path)

	data, err := apiClient.GetArtifactData(ctx, artifacts[0].ID)
	require.NoError(t, err)
	defer data.Close()
	content, err := ioutil.ReadAll(data)
	require.NoError(t, err)
	require.Equal(t, "binary-1.0\n", string(content))

	// The second plan reuses compile
	plan, planRuns := runToCompletion(t, apiClient, "package", models.PlanOptions{})
	require.Equal(t, models.StepActionReuse, plan.Step("compile").Action)
	require.NotNil(t, plan.Step("compile").ReusedRun)
	require.Equal(t, compile.ID, plan.Step("compile").ReusedRun.ID)
	require.Len(t, planRuns, 1)
	require.True(t, planRuns["package"].Dependencies[0].Reused)

	_, err = apiClient.GetRun(ctx, models.NewRunID())
	require.True(t, gerror.IsNotFound(err), "expected not found, got %v", err)
}

func TestEventStream(t *testing.T) {
	app, _, cleanup := startTestServer(t)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	streamURL := app.APIServer.GetServerURL() + "/api/v1/events?stream="
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL+models.NewPlanID().String(), nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	require.NoError(t, res.Body.Close())

	res, err = http.Get(streamURL + "not-a-plan")
	require.NoError(t, err)
	require.NoError(t, res.Body.Close())
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestListJobRunsPagination(t *testing.T) {
	ctx := context.Background()
	_, apiClient, cleanup := startTestServer(t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		runToCompletion(t, apiClient, "compile", models.PlanOptions{Force: true})
	}

	firstPage, hasMore, err := apiClient.ListJobRuns(ctx, "compile", models.NewPagination(2, 0))
	require.NoError(t, err)
	require.Len(t, firstPage, 2)
	require.True(t, hasMore)

	secondPage, hasMore, err := apiClient.ListJobRuns(ctx, "compile", models.NewPagination(2, 2))
	require.NoError(t, err)
	require.Len(t, secondPage, 1)
	require.False(t, hasMore)

	seen := make(map[models.RunID]bool)
	for _, run := range append(firstPage, secondPage...) {
		require.False(t, seen[run.ID], "run %s listed twice", run.ID)
		seen[run.ID] = true
		require.Equal(t, models.RunStatusSucceeded, run.Status)
	}
}
