package services

import (
	"context"
	"io"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/store"
)

type PipelineService interface {
	// Load parses every configured pipeline file (directories are searched for files with a known
	// extension), validates the jobs, resolves every dependency link and rejects cycles.
	// The loaded pipeline replaces the current one.
	// Returns gerror.ErrUnresolvedDependency or gerror.ErrDependencyCycle for a broken graph.
	Load(ctx context.Context) (*dto.Pipeline, error)
	// Current returns the most recently loaded pipeline, loading it first if necessary.
	Current(ctx context.Context) (*dto.Pipeline, error)
	// Fingerprint computes the fingerprint of a job evaluated with the specified effective params.
	// Two runs with the same fingerprint are interchangeable for snapshot reuse.
	Fingerprint(job *models.BuildJob, params models.Params) (string, models.HashType, error)
}

type ResolverService interface {
	// Resolve produces the execution plan needed to run root: root and every job it transitively depends
	// on, in topological order, each marked to be built or satisfied by reusing a previous successful run.
	// No runs are created.
	Resolve(ctx context.Context, pipeline *dto.Pipeline, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error)
}

type QueueService interface {
	// Plan resolves an execution plan for root against the current pipeline without running anything.
	Plan(ctx context.Context, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error)
	// Enqueue resolves an execution plan for root and submits it for execution.
	// The plan is returned as soon as it has been accepted.
	Enqueue(ctx context.Context, root models.JobID, opts models.PlanOptions) (*models.ExecutionPlan, error)
}

// PlanExecutor runs execution plans in the background.
type PlanExecutor interface {
	// Submit queues a plan for execution. Returns an error if the executor is not accepting plans.
	Submit(plan *models.ExecutionPlan) error
}

type RunService interface {
	// Create a new pending run for a build step of a plan.
	Create(ctx context.Context, txOrNil *store.Tx, planID models.PlanID, step *models.PlanStep) (*models.Run, error)
	// Read an existing run, looking it up by ID.
	// Returns gerror.ErrNotFound if the run does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id models.RunID) (*models.Run, error)
	// UpdateStatus moves a run to a new status, recording the time of the transition.
	// Returns gerror.ErrInvalidStatusTransition if the run cannot move to the new status,
	// and gerror.ErrOptimisticLockFailed if the ETag does not match.
	UpdateStatus(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunStatus) (*models.Run, error)
	// UpdateDependencies records which runs satisfied the run's links.
	UpdateDependencies(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunDependencies) (*models.Run, error)
	// UpdateWorkspace records the directory the run executes in.
	UpdateWorkspace(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunWorkspace) (*models.Run, error)
	// FindReusable returns the most recent succeeded run of the job with the specified fingerprint.
	// Returns gerror.ErrNotFound if there is no such run.
	FindReusable(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, fingerprint string) (*models.Run, error)
	// ListByJob lists the run history of a job, newest first. Returns true if there are more runs.
	ListByJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.Run, bool, error)
	// ListByPlan lists the runs created for a plan, in creation order.
	ListByPlan(ctx context.Context, txOrNil *store.Tx, planID models.PlanID) ([]*models.Run, error)
	// ListUnfinished lists every run that has not reached a terminal status, oldest first.
	ListUnfinished(ctx context.Context, txOrNil *store.Tx) ([]*models.Run, error)
}

type ArtifactService interface {
	// Publish uploads the files in workspace matching rules to the run's output area and records them
	// as the run's artifacts. Returns gerror.ErrArtifactNotFound if an include rule matches no files.
	Publish(ctx context.Context, run *models.Run, workspace string, rules models.ArtifactRules) ([]*models.Artifact, error)
	// RemoveOutputs deletes the files in workspace matching rules, left behind by an earlier run of the
	// same job. Returns the number of files removed.
	RemoveOutputs(ctx context.Context, workspace string, rules models.ArtifactRules) (int, error)
	// CleanDestinations empties the destination directories in workspace of every link that asks for
	// a clean destination. Call it once for all of a run's links before transferring any of them, so that
	// files transferred over one link are not removed by cleaning for another.
	CleanDestinations(ctx context.Context, links []*models.DependencyLink, workspace string) error
	// Transfer copies the artifacts of source matching the link's artifact rules into workspace,
	// verifying the size and hash of each file. Returns the number of files copied, or
	// gerror.ErrArtifactNotFound if an include rule matches none of the source run's artifacts.
	Transfer(ctx context.Context, source *models.Run, link *models.DependencyLink, workspace string) (int, error)
	// Read an existing artifact, looking it up by ID.
	// Returns gerror.ErrNotFound if the artifact does not exist.
	Read(ctx context.Context, txOrNil *store.Tx, id models.ArtifactID) (*models.Artifact, error)
	// ListByRun lists the artifacts published by a run, ordered by path.
	ListByRun(ctx context.Context, txOrNil *store.Tx, runID models.RunID) ([]*models.Artifact, error)
	// GetArtifactData returns a reader over the artifact's content, starting at offset and reading at most
	// length bytes (or to the end if length is negative). The caller is responsible for closing the reader.
	GetArtifactData(ctx context.Context, artifact *models.Artifact, offset int64, length int64) (io.ReadCloser, error)
}

type EventService interface {
	// PublishEvent allocates the next sequence number of the plan, stores the event and notifies subscribers.
	PublishEvent(ctx context.Context, txOrNil *store.Tx, eventData *models.EventData) (*models.Event, error)
	// FetchEvents fetches events for a plan with sequence numbers greater than lastEventNumber, up to limit.
	FetchEvents(ctx context.Context, planID models.PlanID, lastEventNumber models.EventNumber, limit int) ([]*models.Event, error)
	// Subscribe registers fn to be called for every event published from now on.
	// Call the returned function to unsubscribe.
	Subscribe(fn func(event *models.Event)) (unsubscribe func())
}

// BlobStore is an interface for storing and retrieving flat files.
type BlobStore interface {
	// PutBlob writes all data in the source reader to a blob identified by key.
	// The caller is responsible for closing the reader.
	PutBlob(ctx context.Context, key string, source io.Reader) error
	// GetBlob returns a reader positioned at the beginning of the blob identified by key.
	// Returns gerror.ErrNotFound if the blob does not exist. The caller is responsible for closing the reader.
	GetBlob(ctx context.Context, key string) (io.ReadCloser, error)
	// GetBlobRange returns a reader positioned at the specified offset of the blob identified
	// by key, which will read up to length bytes. The caller is responsible for closing the reader.
	GetBlobRange(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	// DeleteBlob deletes a blob. Returns nil if the blob does not exist.
	DeleteBlob(ctx context.Context, key string) error
	// ListBlobs lists up to limit blobs whose keys start with prefix, in key order, starting after marker.
	// Returns the marker to pass to fetch the next page, or an empty string if there are no more blobs.
	ListBlobs(ctx context.Context, prefix string, marker string, limit int) ([]*models.BlobDescriptor, string, error)
}
