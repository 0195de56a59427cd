package models

import (
	"fmt"

	"github.com/pkg/errors"
)

type PlanID struct {
	ResourceID
}

func NewPlanID() PlanID {
	return PlanID{ResourceID: NewResourceID(PlanResourceKind)}
}

func PlanIDFromResourceID(id ResourceID) PlanID {
	return PlanID{ResourceID: id}
}

func ParsePlanID(str string) (PlanID, error) {
	id, err := ParseResourceID(str)
	if err != nil {
		return PlanID{}, errors.Wrap(err, "error parsing plan id")
	}
	if id.Kind() != PlanResourceKind {
		return PlanID{}, fmt.Errorf("error expected plan id, found %q", str)
	}
	return PlanIDFromResourceID(id), nil
}

const (
	// StepActionBuild schedules a fresh run of the job.
	StepActionBuild StepAction = "build"
	// StepActionReuse satisfies the job with a previous successful run.
	StepActionReuse StepAction = "reuse"
)

type StepAction string

func (s StepAction) String() string {
	return string(s)
}

// PlanOptions are supplied when a job is triggered.
type PlanOptions struct {
	// Force rebuilds every job in the plan regardless of reuse policies.
	Force bool `json:"force"`
	// Params override the params of every job in the plan.
	Params Params `json:"params"`
}

// PlanStep is the decision made for one job of a plan.
type PlanStep struct {
	JobID               JobID      `json:"job_id"`
	Action              StepAction `json:"action"`
	Params              Params     `json:"params"`
	Fingerprint         string     `json:"fingerprint"`
	FingerprintHashType HashType   `json:"fingerprint_hash_type"`
	// ReusedRun is the run satisfying the step when Action is reuse.
	ReusedRun *Run `json:"reused_run,omitempty"`
	// Commands and ArtifactRules are taken from the job definition when the plan is resolved.
	Commands      []string      `json:"commands,omitempty"`
	ArtifactRules ArtifactRules `json:"artifact_rules,omitempty"`
	// Links are the job's own dependency links; the step blocks only on these.
	Links []*DependencyLink `json:"links"`
	// Reason explains the action, for display.
	Reason string `json:"reason"`
}

// IsBuild returns true if the step schedules a fresh run.
func (m *PlanStep) IsBuild() bool {
	return m.Action == StepActionBuild
}

// ExecutionPlan is the resolved, topologically ordered set of steps needed to run Root.
// Dependencies always come before their dependents and Root is the last step.
type ExecutionPlan struct {
	ID      PlanID      `json:"id"`
	Root    JobID       `json:"root"`
	Options PlanOptions `json:"options"`
	Steps   []*PlanStep `json:"steps"`
}

// Step returns the step for the specified job, or nil.
func (m *ExecutionPlan) Step(jobID JobID) *PlanStep {
	for _, step := range m.Steps {
		if step.JobID == jobID {
			return step
		}
	}
	return nil
}

// BuildSteps returns the steps that schedule a fresh run, in plan order.
func (m *ExecutionPlan) BuildSteps() []*PlanStep {
	var steps []*PlanStep
	for _, step := range m.Steps {
		if step.IsBuild() {
			steps = append(steps, step)
		}
	}
	return steps
}
