package resolver_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/resolver"
	"github.com/buildbeaver/depchain/server/store"
)

// fakeRunService serves FindReusable from an in-memory history; nothing else is needed to resolve plans.
type fakeRunService struct {
	succeeded map[string]*models.Run
	lookups   int
}

func newFakeRunService() *fakeRunService {
	return &fakeRunService{succeeded: make(map[string]*models.Run)}
}

func (f *fakeRunService) addSucceeded(jobID models.JobID, fingerprint string) *models.Run {
	run := models.NewRun(models.NewTime(time.Now()), models.NewPlanID(), jobID, models.Params{}, fingerprint, models.HashTypeFNV)
	run.Status = models.RunStatusSucceeded
	f.succeeded[jobID.String()+"/"+fingerprint] = run
	return run
}

func (f *fakeRunService) FindReusable(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, fingerprint string) (*models.Run, error) {
	f.lookups++
	run, ok := f.succeeded[jobID.String()+"/"+fingerprint]
	if !ok {
		return nil, gerror.NewErrNotFound("run not found")
	}
	return run, nil
}

func (f *fakeRunService) Create(ctx context.Context, txOrNil *store.Tx, planID models.PlanID, step *models.PlanStep) (*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) Read(ctx context.Context, txOrNil *store.Tx, id models.RunID) (*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) UpdateStatus(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunStatus) (*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) UpdateDependencies(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunDependencies) (*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) UpdateWorkspace(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunWorkspace) (*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) ListByJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.Run, bool, error) {
	return nil, false, fmt.Errorf("not implemented")
}

func (f *fakeRunService) ListByPlan(ctx context.Context, txOrNil *store.Tx, planID models.PlanID) ([]*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeRunService) ListUnfinished(ctx context.Context, txOrNil *store.Tx) ([]*models.Run, error) {
	return nil, fmt.Errorf("not implemented")
}

type testEnv struct {
	pipelineService *pipeline.PipelineService
	runService      *fakeRunService
	resolver        *resolver.ResolverService
}

func newTestEnv() *testEnv {
	pipelineService := pipeline.NewPipelineService(pipeline.NewDefaultPipelineConfig("."), logger.NoOpLogFactory)
	runService := newFakeRunService()
	return &testEnv{
		pipelineService: pipelineService,
		runService:      runService,
		resolver:        resolver.NewResolverService(pipelineService, runService, logger.NoOpLogFactory),
	}
}

func job(id models.JobID, links ...*models.DependencyLink) *models.BuildJob {
	for _, link := range links {
		link.Owner = id
	}
	return &models.BuildJob{
		ID:           id,
		Params:       models.Params{"GOOS": "linux"},
		Commands:     []string{"make " + id.String()},
		Dependencies: links,
	}
}

func link(target models.JobID, reuse models.ReusePolicy) *models.DependencyLink {
	return &models.DependencyLink{
		Target:              target,
		ReuseBuilds:         reuse,
		OnDependencyFailure: models.DefaultFailurePolicy,
	}
}

func newPipeline(t *testing.T, jobs ...*models.BuildJob) *dto.Pipeline {
	p, err := dto.NewPipeline([]string{"depchain.yml"}, jobs)
	require.NoError(t, err)
	return p
}

// reuseHistory records a succeeded run for every job of the pipeline, with the fingerprint
// the job has when run with params.
func (e *testEnv) reuseHistory(t *testing.T, p *dto.Pipeline, params models.Params) map[models.JobID]*models.Run {
	history := make(map[models.JobID]*models.Run)
	for _, j := range p.Jobs() {
		fingerprint, _, err := e.pipelineService.Fingerprint(j, j.Params.Merge(params))
		require.NoError(t, err)
		history[j.ID] = e.runService.addSucceeded(j.ID, fingerprint)
	}
	return history
}

func actions(plan *models.ExecutionPlan) map[models.JobID]models.StepAction {
	result := make(map[models.JobID]models.StepAction)
	for _, step := range plan.Steps {
		result[step.JobID] = step.Action
	}
	return result
}

func TestResolveNoDependencies(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t, job("lint"), job("compile"))

	plan, err := env.resolver.Resolve(context.Background(), p, "lint", models.PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	require.Equal(t, models.JobID("lint"), plan.Steps[0].JobID)
	require.True(t, plan.Steps[0].IsBuild())
	require.Empty(t, plan.Steps[0].Links)
	require.True(t, plan.ID.Valid())
}

func TestResolveReuseExisting(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("package", link("compile", models.ReusePolicyReuseExisting)),
	)
	history := env.reuseHistory(t, p, nil)

	plan, err := env.resolver.Resolve(context.Background(), p, "package", models.PlanOptions{})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	compile := plan.Steps[0]
	require.Equal(t, models.JobID("compile"), compile.JobID)
	require.Equal(t, models.StepActionReuse, compile.Action)
	require.Equal(t, history["compile"].ID, compile.ReusedRun.ID)
	require.Equal(t, []*models.PlanStep{plan.Steps[1]}, plan.BuildSteps())
	require.Equal(t, models.JobID("package"), plan.Steps[1].JobID)
}

func TestResolveReuseWithoutHistory(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("package", link("compile", models.ReusePolicyReuseExisting)),
	)
	plan, err := env.resolver.Resolve(context.Background(), p, "package", models.PlanOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StepActionBuild, plan.Step("compile").Action)
	require.Contains(t, plan.Step("compile").Reason, "no previous successful run")
}

func TestResolveAlwaysRebuild(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("package", link("compile", models.ReusePolicyAlwaysRebuild)),
	)
	env.reuseHistory(t, p, nil)

	for i := 0; i < 3; i++ {
		plan, err := env.resolver.Resolve(context.Background(), p, "package", models.PlanOptions{})
		require.NoError(t, err)
		require.Equal(t, models.StepActionBuild, plan.Step("compile").Action)
		require.Nil(t, plan.Step("compile").ReusedRun)
	}
	require.Equal(t, 0, env.runService.lookups)
}

func TestResolveRebuildPropagates(t *testing.T) {
	// compile is always rebuilt for lint, so test (which depends on compile) cannot reuse its
	// previous output either; docs is unaffected and is reused.
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("docs"),
		job("lint", link("compile", models.ReusePolicyAlwaysRebuild)),
		job("test", link("compile", models.ReusePolicyReuseExisting)),
		job("release",
			link("docs", models.ReusePolicyReuseExisting),
			link("lint", models.ReusePolicyReuseExisting),
			link("test", models.ReusePolicyReuseExisting)),
	)
	env.reuseHistory(t, p, nil)

	plan, err := env.resolver.Resolve(context.Background(), p, "release", models.PlanOptions{})
	require.NoError(t, err)
	require.Equal(t, map[models.JobID]models.StepAction{
		"compile": models.StepActionBuild,
		"docs":    models.StepActionReuse,
		"lint":    models.StepActionBuild,
		"test":    models.StepActionBuild,
		"release": models.StepActionBuild,
	}, actions(plan))
	// compile is planned once even though two links reach it
	require.Len(t, plan.Steps, 5)
	require.Equal(t, models.JobID("compile"), plan.Steps[0].JobID)
	require.Equal(t, models.JobID("release"), plan.Steps[4].JobID)
}

func TestResolveForce(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("package", link("compile", models.ReusePolicyReuseExisting)),
	)
	env.reuseHistory(t, p, nil)

	plan, err := env.resolver.Resolve(context.Background(), p, "package", models.PlanOptions{Force: true})
	require.NoError(t, err)
	require.Len(t, plan.BuildSteps(), 2)
	require.Equal(t, "forced rebuild", plan.Step("compile").Reason)
}

func TestResolveParamOverrides(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t,
		job("compile"),
		job("package", link("compile", models.ReusePolicyReuseExisting)),
	)
	env.reuseHistory(t, p, nil)

	// Overrides change the fingerprint of every job in the plan, so the linux run cannot be reused
	opts := models.PlanOptions{Params: models.Params{"GOOS": "darwin"}}
	plan, err := env.resolver.Resolve(context.Background(), p, "package", opts)
	require.NoError(t, err)
	require.Equal(t, models.StepActionBuild, plan.Step("compile").Action)
	require.Equal(t, "darwin", plan.Step("compile").Params["GOOS"])
	require.Equal(t, "darwin", plan.Step("package").Params["GOOS"])

	// Once a darwin run exists it is reused
	env.reuseHistory(t, p, opts.Params)
	plan, err = env.resolver.Resolve(context.Background(), p, "package", opts)
	require.NoError(t, err)
	require.Equal(t, models.StepActionReuse, plan.Step("compile").Action)

	_, err = env.resolver.Resolve(context.Background(), p, "package", models.PlanOptions{Params: models.Params{"bad name": "x"}})
	require.True(t, gerror.IsValidationFailed(err))
}

func TestResolveUnknownRoot(t *testing.T) {
	env := newTestEnv()
	p := newPipeline(t, job("compile"))
	_, err := env.resolver.Resolve(context.Background(), p, "deploy", models.PlanOptions{})
	require.True(t, gerror.IsNotFound(err))
}
