package documents

import (
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
)

type Job struct {
	baseResourceDocument

	ID          models.JobID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	// Params are the job's default params; overrides supplied when triggering take precedence.
	Params models.Params `json:"params"`
	// ArtifactRules select the files the job publishes when it succeeds.
	ArtifactRules string   `json:"artifact_rules"`
	Commands      []string `json:"commands"`
	// Dependencies are the job's own links, in declaration order.
	Dependencies []*DependencyLink `json:"dependencies"`
	// SourceFile is the pipeline file the job was declared in.
	SourceFile string `json:"source_file"`

	PlanURL string `json:"plan_url"`
	RunsURL string `json:"runs_url"`
}

type DependencyLink struct {
	Target              models.JobID         `json:"target"`
	TargetURL           string               `json:"target_url"`
	ReuseBuilds         models.ReusePolicy   `json:"reuse_builds"`
	OnDependencyFailure models.FailurePolicy `json:"on_dependency_failure"`
	CleanDestination    bool                 `json:"clean_destination"`
	ArtifactRules       string               `json:"artifact_rules"`
}

func MakeJob(rctx routes.RequestContext, job *models.BuildJob) *Job {
	return &Job{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeJobLink(rctx, job.ID),
		},
		ID:            job.ID,
		Name:          job.DisplayName(),
		Description:   job.Description,
		Params:        job.Params,
		ArtifactRules: job.ArtifactRules.String(),
		Commands:      job.Commands,
		Dependencies:  MakeDependencyLinks(rctx, job.Dependencies),
		SourceFile:    job.SourceFile,
		PlanURL:       routes.MakeJobPlanLink(rctx, job.ID),
		RunsURL:       routes.MakeJobRunsLink(rctx, job.ID),
	}
}

func MakeJobs(rctx routes.RequestContext, jobs []*models.BuildJob) []*Job {
	docs := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		docs = append(docs, MakeJob(rctx, job))
	}
	return docs
}

func MakeDependencyLinks(rctx routes.RequestContext, links []*models.DependencyLink) []*DependencyLink {
	docs := make([]*DependencyLink, 0, len(links))
	for _, link := range links {
		doc := &DependencyLink{
			Target:              link.Target,
			TargetURL:           routes.MakeJobLink(rctx, link.Target),
			ReuseBuilds:         link.ReuseBuilds,
			OnDependencyFailure: link.OnDependencyFailure,
		}
		if link.Artifacts != nil {
			doc.CleanDestination = link.Artifacts.CleanDestination
			doc.ArtifactRules = link.Artifacts.Rules.String()
		}
		docs = append(docs, doc)
	}
	return docs
}
