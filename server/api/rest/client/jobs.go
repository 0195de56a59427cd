package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
)

func jobPath(jobID models.JobID) string {
	return fmt.Sprintf("/api/v1/jobs/%s", url.PathEscape(jobID.String()))
}

// ListJobs lists every job of the server's current pipeline.
func (a *APIClient) ListJobs(ctx context.Context) ([]*documents.Job, error) {
	var jobs []*documents.Job
	_, err := a.getList(ctx, "/api/v1/jobs", &jobs)
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetJob retrieves a job definition.
func (a *APIClient) GetJob(ctx context.Context, jobID models.JobID) (*documents.Job, error) {
	doc := &documents.Job{}
	err := a.getJSON(ctx, jobPath(jobID), doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetPlan resolves the execution plan for a job on the server without running anything.
func (a *APIClient) GetPlan(ctx context.Context, jobID models.JobID, opts models.PlanOptions) (*documents.Plan, error) {
	req := &documents.PlanRequest{PlanOptions: opts}
	link := documents.AddQueryParams(jobPath(jobID)+"/plan", req.GetQuery())
	doc := &documents.Plan{}
	err := a.getJSON(ctx, link.String(), doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// TriggerJob queues a job for execution, returning the plan the server resolved for it.
func (a *APIClient) TriggerJob(ctx context.Context, jobID models.JobID, opts models.PlanOptions) (*documents.Plan, error) {
	req := &documents.CreateRunsRequest{PlanOptions: opts}
	code, _, body, err := a.post(ctx, nil, jobPath(jobID)+"/runs", req)
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusCreated}) {
		return nil, a.makeHTTPError(code, body)
	}
	doc := &documents.Plan{}
	err = json.Unmarshal(body, doc)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing response body: %s", string(body))
	}
	return doc, nil
}

// ListJobRuns lists the run history of a job, newest first. Returns true if there are more runs.
func (a *APIClient) ListJobRuns(ctx context.Context, jobID models.JobID, pagination models.Pagination) ([]*documents.Run, bool, error) {
	req := &documents.ListRequest{Pagination: pagination}
	link := documents.AddQueryParams(jobPath(jobID)+"/runs", req.GetQuery())
	var runs []*documents.Run
	next, err := a.getList(ctx, link.String(), &runs)
	if err != nil {
		return nil, false, err
	}
	return runs, next != "", nil
}
