package routes

import (
	"fmt"
	"net/url"

	"github.com/buildbeaver/depchain/common/models"
)

func MakeJobsLink(rctx RequestContext) string {
	return fmt.Sprintf("%s/api/v1/jobs", rctx)
}

func MakeJobLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/%s", MakeJobsLink(rctx), url.PathEscape(jobID.String()))
}

func MakeJobPlanLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/plan", MakeJobLink(rctx, jobID))
}

func MakeJobRunsLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/runs", MakeJobLink(rctx, jobID))
}
