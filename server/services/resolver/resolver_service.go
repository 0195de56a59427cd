package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services"
)

type ResolverService struct {
	pipelineService services.PipelineService
	runService      services.RunService
	logger.Log
}

func NewResolverService(
	pipelineService services.PipelineService,
	runService services.RunService,
	logFactory logger.LogFactory,
) *ResolverService {
	return &ResolverService{
		pipelineService: pipelineService,
		runService:      runService,
		Log:             logFactory("ResolverService"),
	}
}

// Resolve produces the execution plan needed to run root: root and every job it transitively depends
// on, in topological order, each marked to be built or satisfied by reusing a previous successful run.
// A job is built if it is root, if the plan is forced, if any link to it asks for ALWAYS_REBUILD or if any
// of its own dependencies is built; otherwise the most recent succeeded run with the same fingerprint is
// reused, and the job is built only if there is no such run.
// No runs are created.
func (s *ResolverService) Resolve(ctx context.Context, pipeline *dto.Pipeline, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, gerror.NewErrValidationFailed("Invalid param overrides").Wrap(err)
	}
	jobs, err := pipeline.Closure(root)
	if err != nil {
		return nil, err
	}

	// A job reached by several links is planned once; ALWAYS_REBUILD on any of them wins
	rebuiltBy := make(map[models.JobID]models.JobID)
	for _, job := range jobs {
		for _, link := range job.Dependencies {
			if link.ReuseBuilds == models.ReusePolicyAlwaysRebuild {
				if _, ok := rebuiltBy[link.Target]; !ok {
					rebuiltBy[link.Target] = job.ID
				}
			}
		}
	}

	plan := &models.ExecutionPlan{
		ID:      models.NewPlanID(),
		Root:    root,
		Options: opts,
		Steps:   make([]*models.PlanStep, 0, len(jobs)),
	}
	steps := make(map[models.JobID]*models.PlanStep, len(jobs))
	for _, job := range jobs {
		step, err := s.resolveStep(ctx, job, root, opts, rebuiltBy, steps)
		if err != nil {
			return nil, fmt.Errorf("error resolving job %q: %w", job.ID, err)
		}
		steps[job.ID] = step
		plan.Steps = append(plan.Steps, step)
		s.WithFields(logger.Fields{"job_id": job.ID, "action": step.Action}).Debugf("Resolved: %s", step.Reason)
	}
	return plan, nil
}

func (s *ResolverService) resolveStep(
	ctx context.Context,
	job *models.BuildJob,
	root models.JobID,
	opts models.PlanOptions,
	rebuiltBy map[models.JobID]models.JobID,
	resolved map[models.JobID]*models.PlanStep,
) (*models.PlanStep, error) {
	params := job.Params.Merge(opts.Params)
	fingerprint, hashType, err := s.pipelineService.Fingerprint(job, params)
	if err != nil {
		return nil, err
	}
	step := &models.PlanStep{
		JobID:               job.ID,
		Action:              models.StepActionBuild,
		Params:              params,
		Fingerprint:         fingerprint,
		FingerprintHashType: hashType,
		Commands:            job.Commands,
		ArtifactRules:       job.ArtifactRules,
		Links:               job.Dependencies,
	}

	if job.ID == root {
		step.Reason = "triggered job"
		return step, nil
	}
	if opts.Force {
		step.Reason = "forced rebuild"
		return step, nil
	}
	if owner, ok := rebuiltBy[job.ID]; ok {
		step.Reason = fmt.Sprintf("%s requires a fresh build (%s)", owner, models.ReusePolicyAlwaysRebuild)
		return step, nil
	}
	var rebuiltDeps []string
	for _, target := range job.DependencyTargets() {
		if dep, ok := resolved[target]; ok && dep.IsBuild() {
			rebuiltDeps = append(rebuiltDeps, target.String())
		}
	}
	if len(rebuiltDeps) > 0 {
		step.Reason = fmt.Sprintf("dependencies are rebuilt: %s", strings.Join(rebuiltDeps, ", "))
		return step, nil
	}

	reusable, err := s.runService.FindReusable(ctx, nil, job.ID, fingerprint)
	if err != nil {
		if gerror.IsNotFound(err) {
			step.Reason = "no previous successful run with a matching fingerprint"
			return step, nil
		}
		return nil, fmt.Errorf("error looking for a reusable run: %w", err)
	}
	step.Action = models.StepActionReuse
	step.ReusedRun = reusable
	step.Reason = fmt.Sprintf("reusing run %s", reusable.ID)
	return step, nil
}
