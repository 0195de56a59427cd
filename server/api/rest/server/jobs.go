package server

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
	"github.com/buildbeaver/depchain/server/services"
)

type JobAPI struct {
	pipelineService services.PipelineService
	queueService    services.QueueService
	runService      services.RunService
	*APIBase
}

func NewJobAPI(
	pipelineService services.PipelineService,
	queueService services.QueueService,
	runService services.RunService,
	logFactory logger.LogFactory) *JobAPI {
	return &JobAPI{
		pipelineService: pipelineService,
		queueService:    queueService,
		runService:      runService,
		APIBase:         NewAPIBase(logFactory("JobAPI")),
	}
}

func (a *JobAPI) List(w http.ResponseWriter, r *http.Request) {
	pipeline, err := a.pipelineService.Current(r.Context())
	if err != nil {
		a.Error(w, r, err)
		return
	}
	docs := documents.MakeJobs(routes.RequestCtx(r), pipeline.Jobs())
	res := documents.NewListResponse(models.JobResourceKind, routes.MakeJobsLink(routes.RequestCtx(r)), nil, docs, false)
	a.JSON(w, r, res)
}

func (a *JobAPI) Get(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	pipeline, err := a.pipelineService.Current(r.Context())
	if err != nil {
		a.Error(w, r, err)
		return
	}
	job, err := pipeline.Job(jobID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakeJob(routes.RequestCtx(r), job))
}

// GetPlan resolves the execution plan for the job without running anything.
func (a *JobAPI) GetPlan(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	req := &documents.PlanRequest{}
	err = req.FromQuery(r.URL.Query())
	if err != nil {
		a.Error(w, r, err)
		return
	}
	plan, err := a.queueService.Plan(r.Context(), jobID, req.PlanOptions)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakePlan(routes.RequestCtx(r), plan))
}

// CreateRun triggers the job, returning the plan that was queued for execution.
func (a *JobAPI) CreateRun(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	req := &documents.CreateRunsRequest{}
	err = render.Bind(r, req)
	if err != nil {
		a.Error(w, r, fmt.Errorf("error parsing request: %w", err))
		return
	}
	plan, err := a.queueService.Enqueue(r.Context(), jobID, req.PlanOptions)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.CreatedResource(w, r, plan.ID.String(), documents.MakePlan(routes.RequestCtx(r), plan))
}

// ListRuns lists the run history of the job, newest first.
func (a *JobAPI) ListRuns(w http.ResponseWriter, r *http.Request) {
	jobID, err := routes.JobIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	req := documents.NewListRequest()
	err = req.FromQuery(r.URL.Query())
	if err != nil {
		a.Error(w, r, err)
		return
	}
	runs, hasMore, err := a.runService.ListByJob(r.Context(), nil, jobID, req.Pagination)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	docs := documents.MakeRuns(routes.RequestCtx(r), runs)
	res := documents.NewListResponse(models.RunResourceKind, routes.MakeJobRunsLink(routes.RequestCtx(r), jobID), req, docs, hasMore)
	a.JSON(w, r, res)
}
