package runs

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store"
)

func init() {
	_ = models.MutableResource(&models.Run{})
	store.MustDBModel(&models.Run{})
}

type RunStore struct {
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *RunStore {
	return &RunStore{
		table: store.NewResourceTable(db, logFactory, &models.Run{}),
	}
}

// Create a new run.
// Returns gerror.ErrAlreadyExists if a run with the same ID already exists.
func (d *RunStore) Create(ctx context.Context, txOrNil *store.Tx, run *models.Run) error {
	return d.table.Create(ctx, txOrNil, run)
}

// Read an existing run, looking it up by ID.
// Returns gerror.ErrNotFound if the run does not exist.
func (d *RunStore) Read(ctx context.Context, txOrNil *store.Tx, id models.RunID) (*models.Run, error) {
	run := &models.Run{}
	return run, d.table.ReadByID(ctx, txOrNil, id.ResourceID, run)
}

// Update an existing run with optimistic locking. Overrides all mutable values using the supplied model.
// Returns gerror.ErrOptimisticLockFailed if there is an optimistic lock mismatch.
func (d *RunStore) Update(ctx context.Context, txOrNil *store.Tx, run *models.Run) error {
	return d.table.UpdateByID(ctx, txOrNil, run)
}

// ReadLatestSucceeded reads the most recently created succeeded run of a job with the given fingerprint.
// Returns gerror.ErrNotFound if there is no such run.
func (d *RunStore) ReadLatestSucceeded(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, fingerprint string) (*models.Run, error) {
	return d.readLatest(ctx, txOrNil, goqu.Ex{
		"run_job_id":      jobID,
		"run_fingerprint": fingerprint,
		"run_status":      models.RunStatusSucceeded,
	})
}

func (d *RunStore) readLatest(ctx context.Context, txOrNil *store.Tx, where goqu.Ex) (*models.Run, error) {
	run := &models.Run{}
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(run).
		Where(where).
		Order(goqu.C("run_created_at").Desc(), goqu.C("run_id").Desc())
	return run, d.table.ReadIn(ctx, txOrNil, run, ds)
}

// ListByJob lists the runs of a job, newest first. Returns true if there are more runs after this page.
func (d *RunStore) ListByJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.Run, bool, error) {
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Run{}).
		Where(goqu.Ex{"run_job_id": jobID})
	var runs []*models.Run
	hasMore, err := d.table.ListIn(ctx, txOrNil, &runs, pagination, ds)
	if err != nil {
		return nil, false, err
	}
	return runs, hasMore, nil
}

// ListByPlan lists every run created for a plan, oldest first.
func (d *RunStore) ListByPlan(ctx context.Context, txOrNil *store.Tx, planID models.PlanID) ([]*models.Run, error) {
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Run{}).
		Where(goqu.Ex{"run_plan_id": planID})
	var runs []*models.Run
	if err := d.table.ListAllIn(ctx, txOrNil, &runs, ds); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListUnfinished lists every run that has not reached a terminal status, oldest first.
func (d *RunStore) ListUnfinished(ctx context.Context, txOrNil *store.Tx) ([]*models.Run, error) {
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Run{}).
		Where(goqu.C("run_status").In(
			models.RunStatusPending,
			models.RunStatusBlockedOnDependency,
			models.RunStatusRunning))
	var runs []*models.Run
	if err := d.table.ListAllIn(ctx, txOrNil, &runs, ds); err != nil {
		return nil, err
	}
	return runs, nil
}
