package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services"
)

const (
	DefaultBuildTimeout = 2 * time.Hour
	// statusUpdateTimeout is the maximum time to spend trying to update a run's status. It is independent of
	// the build timeout so that runs that time out can still be marked as failed.
	statusUpdateTimeout = time.Minute * 5
)

// getStatusUpdateContext returns a context with a timeout to use when updating run statuses.
func getStatusUpdateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), statusUpdateTimeout)
}

// WorkspaceDir returns the workspace of a job under the runner's work dir. Every run of the job
// executes in the same workspace, one run at a time. Files matching the job's artifact rules are
// removed before each run, so only files the run produces are published.
func WorkspaceDir(workspacesDir string, jobID models.JobID) string {
	return filepath.Join(workspacesDir, jobID.String())
}

type OrchestratorConfig struct {
	// WorkspacesDir contains one workspace directory per job.
	WorkspacesDir string
	// BuildTimeout limits how long a whole plan may take.
	BuildTimeout time.Duration
}

// JobSlots bounds the number of runs executing commands at the same time.
type JobSlots interface {
	// Acquire blocks until a slot is free or ctx is done.
	Acquire(ctx context.Context) error
	Release()
}

// stepResult is the outcome of one step of a plan. done is closed once run is terminal.
type stepResult struct {
	run  *models.Run
	done chan struct{}
}

// PlanResult is the outcome of executing a plan.
type PlanResult struct {
	Plan *models.ExecutionPlan
	// Runs holds the final state of the run satisfying each step, including reused runs.
	Runs map[models.JobID]*models.Run
}

// Root returns the run of the plan's root job.
func (r *PlanResult) Root() *models.Run {
	return r.Runs[r.Plan.Root]
}

// Orchestrator executes plans: it creates a run for every build step, then drives each run through its
// lifecycle as soon as the runs it links to have finished, so that unrelated runs proceed in parallel.
type Orchestrator struct {
	config          OrchestratorConfig
	runService      services.RunService
	artifactService services.ArtifactService
	eventService    services.EventService
	executor        *Executor
	workspaceLocks  *workspaceLocks
	logger.Log
}

func NewOrchestrator(
	config OrchestratorConfig,
	runService services.RunService,
	artifactService services.ArtifactService,
	eventService services.EventService,
	executor *Executor,
	logFactory logger.LogFactory,
) *Orchestrator {
	if config.BuildTimeout == 0 {
		config.BuildTimeout = DefaultBuildTimeout
	}
	return &Orchestrator{
		config:          config,
		runService:      runService,
		artifactService: artifactService,
		eventService:    eventService,
		executor:        executor,
		workspaceLocks:  newWorkspaceLocks(),
		Log:             logFactory("Orchestrator"),
	}
}

// Run executes every build step of the plan and waits for all of them to finish. Steps that reuse an
// existing run are satisfied immediately. A PlanFinished event is published once every run is terminal.
func (o *Orchestrator) Run(ctx context.Context, plan *models.ExecutionPlan, slots JobSlots) (*PlanResult, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.BuildTimeout)
	defer cancel()
	log := o.WithFields(logger.Fields{"plan_id": plan.ID, "job_id": plan.Root})

	// Create every run up front, in plan order, so the whole plan is visible in the run history at once
	results := make(map[models.JobID]*stepResult, len(plan.Steps))
	for _, step := range plan.Steps {
		result := &stepResult{done: make(chan struct{})}
		if step.IsBuild() {
			run, err := o.runService.Create(ctx, nil, plan.ID, step)
			if err != nil {
				err = fmt.Errorf("error creating run for job %q: %w", step.JobID, err)
				o.abandonPlan(plan, results, err)
				return nil, err
			}
			result.run = run
		} else {
			result.run = step.ReusedRun
			close(result.done)
		}
		results[step.JobID] = result
	}

	var wg sync.WaitGroup
	for _, step := range plan.BuildSteps() {
		step := step
		result := results[step.JobID]
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(result.done)
			result.run = o.runStep(ctx, plan, step, result.run, results, slots)
		}()
	}
	wg.Wait()

	planResult := &PlanResult{Plan: plan, Runs: make(map[models.JobID]*models.Run, len(results))}
	for jobID, result := range results {
		planResult.Runs[jobID] = result.run
	}
	root := planResult.Root()
	log.WithField("status", root.Status).Info("Plan finished")
	statusCtx, statusCancel := getStatusUpdateContext()
	defer statusCancel()
	_, err := o.eventService.PublishEvent(statusCtx, nil, models.NewPlanFinishedEventData(plan, root.Status, root.Error))
	if err != nil {
		log.Errorf("Error publishing plan finished event: %s", err)
	}
	return planResult, nil
}

// runStep drives a single run through its lifecycle. It never returns an error; failures are recorded
// against the run, and the final state of the run is returned.
func (o *Orchestrator) runStep(
	ctx context.Context,
	plan *models.ExecutionPlan,
	step *models.PlanStep,
	run *models.Run,
	results map[models.JobID]*stepResult,
	slots JobSlots,
) *models.Run {
	runCtx := NewRunContext(ctx, plan, step, run)
	log := o.WithFields(logger.Fields{"run_id": run.ID, "job_id": run.JobID})

	if len(step.Links) > 0 {
		if err := o.updateStatus(runCtx, models.RunStatusBlockedOnDependency, nil); err != nil {
			return o.finish(runCtx, models.RunStatusFailed, err)
		}
		// Block only on our own links
		for _, target := range linkTargets(step.Links) {
			result, ok := results[target]
			if !ok {
				return o.finish(runCtx, models.RunStatusFailed, gerror.NewErrUnresolvedDependency(step.JobID.String(), target.String()))
			}
			select {
			case <-result.done:
				runCtx.SetTarget(target, result.run)
			case <-ctx.Done():
				return o.finish(runCtx, models.RunStatusFailed, errors.Wrap(ctx.Err(), "error waiting for dependencies"))
			}
		}
		status, err := o.checkDependencies(runCtx)
		if err != nil {
			log.Infof("Not running: %s", err)
			o.recordDependencies(runCtx, nil)
			return o.finish(runCtx, status, err)
		}
	}

	unlock, err := o.workspaceLocks.lock(ctx, run.JobID)
	if err != nil {
		return o.finish(runCtx, models.RunStatusFailed, errors.Wrap(err, "error waiting for workspace"))
	}
	defer unlock()
	runCtx.SetWorkspace(WorkspaceDir(o.config.WorkspacesDir, run.JobID))
	if err := os.MkdirAll(runCtx.Workspace(), 0755); err != nil {
		return o.finish(runCtx, models.RunStatusFailed, errors.Wrap(err, "error creating workspace"))
	}
	if err := o.updateWorkspace(runCtx); err != nil {
		return o.finish(runCtx, models.RunStatusFailed, err)
	}
	if _, err := o.artifactService.RemoveOutputs(ctx, runCtx.Workspace(), step.ArtifactRules); err != nil {
		return o.finish(runCtx, models.RunStatusFailed, gerror.NewErrArtifactPublishFailed("Error removing outputs of a previous run", err))
	}

	transferred, err := o.transferArtifacts(runCtx)
	o.recordDependencies(runCtx, transferred)
	if err != nil {
		return o.finish(runCtx, models.RunStatusFailed, err)
	}

	// Blocked runs don't hold a slot; only executing runs do
	if err := slots.Acquire(ctx); err != nil {
		return o.finish(runCtx, models.RunStatusFailed, errors.Wrap(err, "error waiting for a free job slot"))
	}
	defer slots.Release()

	if err := o.updateStatus(runCtx, models.RunStatusRunning, nil); err != nil {
		return o.finish(runCtx, models.RunStatusFailed, err)
	}
	err = o.executor.Execute(runCtx)
	if err == nil {
		_, err = o.artifactService.Publish(ctx, runCtx.Run(), runCtx.Workspace(), step.ArtifactRules)
	}
	if cleanupErr := o.executor.CleanUp(runCtx); cleanupErr != nil {
		log.Warnf("Will ignore error cleaning up after run: %s", cleanupErr)
	}
	if err != nil {
		o.executor.LogRunError(runCtx, err)
		return o.finish(runCtx, models.RunStatusFailed, err)
	}
	return o.finish(runCtx, models.RunStatusSucceeded, nil)
}

// checkDependencies applies the failure policy of each link whose target did not succeed, in link order.
// Returns the terminal status the run must move to and the reason, or a nil error if the run can proceed.
func (o *Orchestrator) checkDependencies(ctx *RunContext) (models.RunStatus, error) {
	for _, link := range ctx.Step().Links {
		target := ctx.Target(link.Target)
		if target.Status == models.RunStatusSucceeded {
			continue
		}
		switch link.OnDependencyFailure {
		case models.FailurePolicyIgnore:
			o.WithField("run_id", ctx.Run().ID).
				Infof("Ignoring %s dependency %s; its artifacts will not be transferred", target.Status, link.Target)
		case models.FailurePolicyFailDependent:
			return models.RunStatusFailed, gerror.NewErrDependencyFailed(link.Target.String(), target.Status.String())
		default:
			return models.RunStatusNotStarted, gerror.NewErrDependencyBlocked(link.Target.String(), target.Status.String())
		}
	}
	return "", nil
}

// transferArtifacts cleans the destinations of every link that asks for it, including links to ignored
// targets that did not succeed, then copies the artifacts of every succeeded target into the workspace.
// Returns the number of files transferred per target.
func (o *Orchestrator) transferArtifacts(ctx *RunContext) (map[models.JobID]int, error) {
	err := o.artifactService.CleanDestinations(ctx.Ctx(), ctx.Step().Links, ctx.Workspace())
	if err != nil {
		return nil, fmt.Errorf("error cleaning artifact destinations: %w", err)
	}
	transferred := make(map[models.JobID]int)
	for _, link := range ctx.Step().Links {
		if !link.HasArtifacts() || ctx.Target(link.Target).Status != models.RunStatusSucceeded {
			continue
		}
		n, err := o.artifactService.Transfer(ctx.Ctx(), ctx.Target(link.Target), link, ctx.Workspace())
		if err != nil {
			return transferred, fmt.Errorf("error transferring artifacts from %s: %w", link.Target, err)
		}
		transferred[link.Target] += n
	}
	return transferred, nil
}

// recordDependencies records which run satisfied each of the run's links.
func (o *Orchestrator) recordDependencies(ctx *RunContext, transferred map[models.JobID]int) {
	var deps models.RunDependencies
	for _, target := range linkTargets(ctx.Step().Links) {
		run := ctx.Target(target)
		if run == nil {
			continue
		}
		deps = append(deps, &models.RunDependency{
			TargetJobID:          target,
			RunID:                run.ID,
			Status:               run.Status,
			Reused:               run.PlanID != ctx.Run().PlanID,
			ArtifactsTransferred: transferred[target],
		})
	}
	if len(deps) == 0 {
		return
	}
	statusCtx, cancel := getStatusUpdateContext()
	defer cancel()
	run, err := o.runService.UpdateDependencies(statusCtx, nil, ctx.Run().ID, dto.UpdateRunDependencies{
		Dependencies: deps,
		ETag:         ctx.Run().ETag,
	})
	if err != nil {
		o.Errorf("Error recording dependencies of run %s: %s", ctx.Run().ID, err)
		return
	}
	ctx.SetRun(run)
}

func (o *Orchestrator) updateWorkspace(ctx *RunContext) error {
	statusCtx, cancel := getStatusUpdateContext()
	defer cancel()
	run, err := o.runService.UpdateWorkspace(statusCtx, nil, ctx.Run().ID, dto.UpdateRunWorkspace{
		Workspace: ctx.Workspace(),
		ETag:      ctx.Run().ETag,
	})
	if err != nil {
		return fmt.Errorf("error recording workspace: %w", err)
	}
	ctx.SetRun(run)
	return nil
}

func (o *Orchestrator) updateStatus(ctx *RunContext, status models.RunStatus, runErr error) error {
	// Use a new context for the status update, so we can send an update even if the main context timed out
	statusCtx, cancel := getStatusUpdateContext()
	defer cancel()
	run, err := o.runService.UpdateStatus(statusCtx, nil, ctx.Run().ID, dto.UpdateRunStatus{
		Status: status,
		Error:  models.NewError(runErr),
		ETag:   ctx.Run().ETag,
	})
	if err != nil {
		return fmt.Errorf("error updating run status to %s: %w", status, err)
	}
	ctx.SetRun(run)
	return nil
}

// finish moves the run to a terminal status and returns its final state.
func (o *Orchestrator) finish(ctx *RunContext, status models.RunStatus, runErr error) *models.Run {
	err := o.updateStatus(ctx, status, runErr)
	if err != nil {
		o.Errorf("Error finishing run %s: %s", ctx.Run().ID, err)
		// Report the outcome even if it could not be stored
		run := *ctx.Run()
		run.Status = status
		run.Error = models.NewError(runErr)
		return &run
	}
	return ctx.Run()
}

// abandonPlan fails every run already created for a plan that could not be started.
func (o *Orchestrator) abandonPlan(plan *models.ExecutionPlan, results map[models.JobID]*stepResult, cause error) {
	for _, result := range results {
		if result.run.PlanID != plan.ID {
			continue
		}
		ctx := NewRunContext(context.Background(), plan, plan.Step(result.run.JobID), result.run)
		o.finish(ctx, models.RunStatusFailed, errors.Wrap(cause, "error starting plan"))
	}
}

// linkTargets returns the distinct targets of links, in link order.
func linkTargets(links []*models.DependencyLink) []models.JobID {
	seen := make(map[models.JobID]bool, len(links))
	var targets []models.JobID
	for _, link := range links {
		if !seen[link.Target] {
			seen[link.Target] = true
			targets = append(targets, link.Target)
		}
	}
	return targets
}

// workspaceLocks serializes runs of the same job, which share a workspace.
type workspaceLocks struct {
	mu    sync.Mutex
	locks map[models.JobID]chan struct{}
}

func newWorkspaceLocks() *workspaceLocks {
	return &workspaceLocks{locks: make(map[models.JobID]chan struct{})}
}

// lock blocks until the workspace of jobID is free or ctx is done. Call the returned function to unlock.
func (w *workspaceLocks) lock(ctx context.Context, jobID models.JobID) (func(), error) {
	w.mu.Lock()
	lock, ok := w.locks[jobID]
	if !ok {
		lock = make(chan struct{}, 1)
		w.locks[jobID] = lock
	}
	w.mu.Unlock()
	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
