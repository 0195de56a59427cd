package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
)

// JobIDParam extracts a job id from the url parameters on the supplied request.
func JobIDParam(r *http.Request) (models.JobID, error) {
	jobID := models.JobID(chi.URLParam(r, "job_id"))
	if err := jobID.Validate(); err != nil {
		return "", gerror.NewErrNotFound("Not Found").Wrap(err)
	}
	return jobID, nil
}

// RunIDParam extracts a run id from the url parameters on the supplied request.
func RunIDParam(r *http.Request) (models.RunID, error) {
	runID, err := models.ParseRunID(chi.URLParam(r, "run_id"))
	if err != nil {
		return models.RunID{}, gerror.NewErrNotFound("Not Found").Wrap(err)
	}
	return runID, nil
}

// PlanIDParam extracts a plan id from the url parameters on the supplied request.
func PlanIDParam(r *http.Request) (models.PlanID, error) {
	planID, err := models.ParsePlanID(chi.URLParam(r, "plan_id"))
	if err != nil {
		return models.PlanID{}, gerror.NewErrNotFound("Not Found").Wrap(err)
	}
	return planID, nil
}

// ArtifactIDParam extracts an artifact id from the url parameters on the supplied request.
func ArtifactIDParam(r *http.Request) (models.ArtifactID, error) {
	artifactID, err := models.ParseArtifactID(chi.URLParam(r, "artifact_id"))
	if err != nil {
		return models.ArtifactID{}, gerror.NewErrNotFound("Not Found").Wrap(err)
	}
	return artifactID, nil
}
