package documents

import (
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
)

type Run struct {
	baseResourceDocument

	ID        models.RunID `json:"id"`
	CreatedAt models.Time  `json:"created_at"`
	UpdatedAt models.Time  `json:"updated_at"`
	ETag      models.ETag  `json:"etag"`

	JobID  models.JobID     `json:"job_id"`
	PlanID models.PlanID    `json:"plan_id"`
	Status models.RunStatus `json:"status"`
	// Params are the effective params the run was created with.
	Params              models.Params   `json:"params"`
	Fingerprint         string          `json:"fingerprint"`
	FingerprintHashType models.HashType `json:"fingerprint_hash_type"`
	// Dependencies records the target run chosen for each of the job's links.
	Dependencies []*RunDependency `json:"dependencies"`
	// Error is set if the run failed or was not started. Its code distinguishes e.g. DependencyBlocked
	// (a NOT_STARTED run) from ArtifactNotFound.
	Error   *models.Error     `json:"error"`
	Timings models.RunTimings `json:"timings"`

	JobURL       string `json:"job_url"`
	PlanRunsURL  string `json:"plan_runs_url"`
	ArtifactsURL string `json:"artifacts_url"`
}

type RunDependency struct {
	*models.RunDependency
	RunURL string `json:"run_url"`
}

func MakeRun(rctx routes.RequestContext, run *models.Run) *Run {
	deps := make([]*RunDependency, 0, len(run.Dependencies))
	for _, dep := range run.Dependencies {
		deps = append(deps, &RunDependency{
			RunDependency: dep,
			RunURL:        routes.MakeRunLink(rctx, dep.RunID),
		})
	}
	return &Run{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeRunLink(rctx, run.ID),
		},
		ID:                  run.ID,
		CreatedAt:           run.CreatedAt,
		UpdatedAt:           run.UpdatedAt,
		ETag:                run.ETag,
		JobID:               run.JobID,
		PlanID:              run.PlanID,
		Status:              run.Status,
		Params:              run.Params,
		Fingerprint:         run.Fingerprint,
		FingerprintHashType: run.FingerprintHashType,
		Dependencies:        deps,
		Error:               run.Error,
		Timings:             run.Timings,
		JobURL:              routes.MakeJobLink(rctx, run.JobID),
		PlanRunsURL:         routes.MakePlanRunsLink(rctx, run.PlanID),
		ArtifactsURL:        routes.MakeRunArtifactsLink(rctx, run.ID),
	}
}

func MakeRuns(rctx routes.RequestContext, runs []*models.Run) []*Run {
	docs := make([]*Run, 0, len(runs))
	for _, run := range runs {
		docs = append(docs, MakeRun(rctx, run))
	}
	return docs
}

func (m *Run) GetETag() models.ETag {
	return m.ETag
}
