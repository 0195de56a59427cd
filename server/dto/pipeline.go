package dto

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
)

// Pipeline is the validated set of jobs loaded from one or more pipeline files, along with the
// dependency graph between them. Job ids are global across files.
type Pipeline struct {
	// Files lists the pipeline files the jobs were loaded from.
	Files []string
	jobs  map[models.JobID]*models.BuildJob
	dag   *DAG
}

// NewPipeline validates each job, resolves every dependency link to exactly one job and rejects
// dependency cycles.
func NewPipeline(files []string, jobs []*models.BuildJob) (*Pipeline, error) {
	var result *multierror.Error
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("error validating job %q (%s): %w", job.ID, job.SourceFile, err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, gerror.NewErrValidationFailed(err.Error()).Wrap(err)
	}

	nodes := make([]GraphNode, len(jobs))
	byID := make(map[models.JobID]*models.BuildJob, len(jobs))
	for i, job := range jobs {
		nodes[i] = job
		byID[job.ID] = job
	}
	dag, err := NewDAG(nodes)
	if err != nil {
		return nil, err
	}
	return &Pipeline{Files: files, jobs: byID, dag: dag}, nil
}

// Len returns the number of jobs in the pipeline.
func (p *Pipeline) Len() int {
	return len(p.jobs)
}

// Job returns the job with the specified id.
// Returns gerror.ErrNotFound if there is no such job.
func (p *Pipeline) Job(id models.JobID) (*models.BuildJob, error) {
	job, ok := p.jobs[id]
	if !ok {
		return nil, gerror.NewErrNotFound(fmt.Sprintf("Job %q not found", id))
	}
	return job, nil
}

// Jobs returns every job in topological order (dependencies first, ties broken by id).
func (p *Pipeline) Jobs() []*models.BuildJob {
	return p.toJobs(p.dag.Nodes())
}

// Closure returns root and every job it transitively depends on, in topological order with root last.
// Returns gerror.ErrNotFound if root is not in the pipeline.
func (p *Pipeline) Closure(root models.JobID) ([]*models.BuildJob, error) {
	ancestors, err := p.dag.Ancestors(root)
	if err != nil {
		return nil, err
	}
	return append(p.toJobs(ancestors), p.jobs[root]), nil
}

func (p *Pipeline) toJobs(nodes []GraphNode) []*models.BuildJob {
	jobs := make([]*models.BuildJob, len(nodes))
	for i, node := range nodes {
		jobs[i] = node.(*models.BuildJob)
	}
	return jobs
}
