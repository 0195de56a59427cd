package documents

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
)

type Plan struct {
	baseResourceDocument

	ID      models.PlanID      `json:"id"`
	Root    models.JobID       `json:"root"`
	Options models.PlanOptions `json:"options"`
	// Steps are in topological order; the root job's step is last.
	Steps []*PlanStep `json:"steps"`

	RunsURL        string `json:"runs_url"`
	EventsURL      string `json:"events_url"`
	EventStreamURL string `json:"event_stream_url"`
}

type PlanStep struct {
	JobID       models.JobID      `json:"job_id"`
	Action      models.StepAction `json:"action"`
	Reason      string            `json:"reason"`
	Params      models.Params     `json:"params"`
	Fingerprint string            `json:"fingerprint"`
	// ReusedRun is set when Action is reuse.
	ReusedRun *Run `json:"reused_run,omitempty"`
	// DependsOn lists the targets of the step's links.
	DependsOn []models.JobID `json:"depends_on"`
}

func MakePlan(rctx routes.RequestContext, plan *models.ExecutionPlan) *Plan {
	steps := make([]*PlanStep, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		doc := &PlanStep{
			JobID:       step.JobID,
			Action:      step.Action,
			Reason:      step.Reason,
			Params:      step.Params,
			Fingerprint: step.Fingerprint,
			DependsOn:   make([]models.JobID, 0, len(step.Links)),
		}
		if step.ReusedRun != nil {
			doc.ReusedRun = MakeRun(rctx, step.ReusedRun)
		}
		for _, link := range step.Links {
			doc.DependsOn = append(doc.DependsOn, link.Target)
		}
		steps = append(steps, doc)
	}
	return &Plan{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakePlanLink(rctx, plan.ID),
		},
		ID:             plan.ID,
		Root:           plan.Root,
		Options:        plan.Options,
		Steps:          steps,
		RunsURL:        routes.MakePlanRunsLink(rctx, plan.ID),
		EventsURL:      routes.MakePlanEventsLink(rctx, plan.ID),
		EventStreamURL: routes.MakePlanEventStreamLink(rctx, plan.ID),
	}
}

// Step returns the step for the specified job, or nil.
func (m *Plan) Step(jobID models.JobID) *PlanStep {
	for _, step := range m.Steps {
		if step.JobID == jobID {
			return step
		}
	}
	return nil
}

// CreateRunsRequest triggers a job.
type CreateRunsRequest struct {
	models.PlanOptions
}

func (d *CreateRunsRequest) Bind(r *http.Request) error {
	if err := d.Params.Validate(); err != nil {
		return gerror.NewErrValidationFailed("Invalid params").Wrap(err)
	}
	return nil
}

// PlanRequest asks for a dry-run resolution of a job, with options supplied as query parameters.
type PlanRequest struct {
	models.PlanOptions
}

func (d *PlanRequest) GetQuery() url.Values {
	values := make(url.Values)
	if d.Force {
		values.Set("force", "true")
	}
	for _, name := range d.Params.Names() {
		values.Add("param", name+"="+d.Params[name])
	}
	return values
}

func (d *PlanRequest) FromQuery(values url.Values) error {
	if str := values.Get("force"); str != "" {
		force, err := strconv.ParseBool(str)
		if err != nil {
			return gerror.NewErrInvalidQueryParameter("error decoding force").Wrap(err)
		}
		d.Force = force
	}
	params, err := models.ParseParamOverrides(values["param"])
	if err != nil {
		return gerror.NewErrInvalidQueryParameter("error decoding param").Wrap(err)
	}
	d.Params = params
	return nil
}
