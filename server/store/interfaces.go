package store

import (
	"context"

	"github.com/buildbeaver/depchain/common/models"
)

type RunStore interface {
	// Create a new run.
	// Returns gerror.ErrAlreadyExists if a run with the same ID already exists.
	Create(ctx context.Context, txOrNil *Tx, run *models.Run) error
	// Read an existing run, looking it up by ID.
	// Returns gerror.ErrNotFound if the run does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.RunID) (*models.Run, error)
	// Update an existing run with optimistic locking. Overrides all mutable values using the supplied model.
	// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
	Update(ctx context.Context, txOrNil *Tx, run *models.Run) error
	// ReadLatestSucceeded reads the most recently created succeeded run of a job with the given fingerprint.
	// Returns gerror.ErrNotFound if there is no such run.
	ReadLatestSucceeded(ctx context.Context, txOrNil *Tx, jobID models.JobID, fingerprint string) (*models.Run, error)
	// ListByJob lists the runs of a job, newest first. Returns true if there are more runs after this page.
	ListByJob(ctx context.Context, txOrNil *Tx, jobID models.JobID, pagination models.Pagination) ([]*models.Run, bool, error)
	// ListByPlan lists every run created for a plan, oldest first.
	ListByPlan(ctx context.Context, txOrNil *Tx, planID models.PlanID) ([]*models.Run, error)
	// ListUnfinished lists every run that has not reached a terminal status, oldest first.
	ListUnfinished(ctx context.Context, txOrNil *Tx) ([]*models.Run, error)
}

type ArtifactStore interface {
	// Create a new artifact.
	// Returns gerror.ErrAlreadyExists if the run already has an artifact at the same path.
	Create(ctx context.Context, txOrNil *Tx, artifact *models.Artifact) error
	// Read an existing artifact, looking it up by ID.
	// Returns gerror.ErrNotFound if the artifact does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.ArtifactID) (*models.Artifact, error)
	// ListByRun lists every artifact published by a run, ordered by path.
	ListByRun(ctx context.Context, txOrNil *Tx, runID models.RunID) ([]*models.Artifact, error)
}

type EventStore interface {
	// Create a new event with the specified sequence number and data.
	// Returns gerror.ErrAlreadyExists if an event with this ID or plan/sequence number already exists.
	Create(ctx context.Context, txOrNil *Tx, now models.Time, sequenceNumber models.EventNumber, eventData *models.EventData) (*models.Event, error)
	// Read an existing event, looking it up by ID.
	// Returns gerror.ErrNotFound if the event does not exist.
	Read(ctx context.Context, txOrNil *Tx, id models.EventID) (*models.Event, error)
	// FindEvents reads the next events for a plan, i.e. those with sequence numbers greater than lastEventNumber.
	// If no matching events are present then an empty list is returned immediately.
	FindEvents(ctx context.Context, txOrNil *Tx, planID models.PlanID, lastEventNumber models.EventNumber, limit int) ([]*models.Event, error)
	// IncrementEventCounter increments and returns the event counter for the specified plan, to provide
	// a sequence number for a new event.
	IncrementEventCounter(ctx context.Context, txOrNil *Tx, planID models.PlanID) (models.EventNumber, error)
}
