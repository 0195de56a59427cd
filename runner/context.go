package runner

import (
	"context"

	"github.com/buildbeaver/depchain/common/models"
)

// RunContext carries everything known about one run of a plan while it is being executed.
type RunContext struct {
	ctx       context.Context
	plan      *models.ExecutionPlan
	step      *models.PlanStep
	run       *models.Run
	targets   map[models.JobID]*models.Run
	workspace string
}

func NewRunContext(ctx context.Context, plan *models.ExecutionPlan, step *models.PlanStep, run *models.Run) *RunContext {
	return &RunContext{
		ctx:     ctx,
		plan:    plan,
		step:    step,
		run:     run,
		targets: make(map[models.JobID]*models.Run),
	}
}

func (c *RunContext) Ctx() context.Context {
	return c.ctx
}

func (c *RunContext) Plan() *models.ExecutionPlan {
	return c.plan
}

func (c *RunContext) Step() *models.PlanStep {
	return c.step
}

func (c *RunContext) Run() *models.Run {
	return c.run
}

// SetRun replaces the run with a more recent copy, e.g. after a status update.
func (c *RunContext) SetRun(run *models.Run) {
	c.run = run
}

// Target returns the run that satisfied the link to jobID, or nil if the target has not finished.
func (c *RunContext) Target(jobID models.JobID) *models.Run {
	return c.targets[jobID]
}

func (c *RunContext) SetTarget(jobID models.JobID, run *models.Run) {
	c.targets[jobID] = run
}

func (c *RunContext) Workspace() string {
	return c.workspace
}

func (c *RunContext) SetWorkspace(workspace string) {
	c.workspace = workspace
}
