package run

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/store"
)

type RunService struct {
	db           *store.DB
	runStore     store.RunStore
	eventService services.EventService
	clock        clock.Clock
	logger.Log
}

func NewRunService(
	db *store.DB,
	runStore store.RunStore,
	eventService services.EventService,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *RunService {
	return &RunService{
		db:           db,
		runStore:     runStore,
		eventService: eventService,
		clock:        clk,
		Log:          logFactory("RunService"),
	}
}

// Create a new pending run for a build step of a plan.
func (s *RunService) Create(ctx context.Context, txOrNil *store.Tx, planID models.PlanID, step *models.PlanStep) (*models.Run, error) {
	if !step.IsBuild() {
		return nil, gerror.NewErrValidationFailed(fmt.Sprintf("Step for job %q reuses an existing run; no run is created for it", step.JobID))
	}
	run := models.NewRun(models.NewTime(s.clock.Now()), planID, step.JobID, step.Params, step.Fingerprint, step.FingerprintHashType)
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		err := s.runStore.Create(ctx, tx, run)
		if err != nil {
			return fmt.Errorf("error creating run: %w", err)
		}
		_, err = s.eventService.PublishEvent(ctx, tx, models.NewRunStatusChangedEventData(run))
		if err != nil {
			return fmt.Errorf("error publishing run status changed event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Debugf("Created run %s of job %s for plan %s", run.ID, run.JobID, planID)
	return run, nil
}

// Read an existing run, looking it up by ID.
// Returns gerror.ErrNotFound if the run does not exist.
func (s *RunService) Read(ctx context.Context, txOrNil *store.Tx, id models.RunID) (*models.Run, error) {
	return s.runStore.Read(ctx, txOrNil, id)
}

// UpdateStatus moves a run to a new status, recording the time of the transition and publishing a
// RunStatusChanged event. Updating a run to the status it already has is a no-op.
// Returns gerror.ErrInvalidStatusTransition if the run cannot move to the new status,
// and gerror.ErrOptimisticLockFailed if the ETag does not match.
func (s *RunService) UpdateStatus(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunStatus) (*models.Run, error) {
	var run *models.Run
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		var err error
		run, err = s.runStore.Read(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("error reading run: %w", err)
		}
		if run.Status == update.Status {
			return nil
		}
		if !run.Status.CanTransitionTo(update.Status) {
			return gerror.NewErrInvalidStatusTransition(run.Status.String(), update.Status.String()).
				IDetail("run_id", run.ID.String())
		}
		now := models.NewTime(s.clock.Now())
		run.ETag = models.GetETag(run, update.ETag)
		run.Status = update.Status
		run.Error = update.Error
		run.UpdatedAt = now
		run.Timings.Record(update.Status, now)
		err = s.runStore.Update(ctx, tx, run)
		if err != nil {
			return fmt.Errorf("error updating run: %w", err)
		}
		_, err = s.eventService.PublishEvent(ctx, tx, models.NewRunStatusChangedEventData(run))
		if err != nil {
			return fmt.Errorf("error publishing run status changed event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	log := s.WithFields(logger.Fields{"run_id": run.ID, "job_id": run.JobID})
	if run.Error != nil {
		log = log.WithField("error", run.Error.Error())
	}
	log.Infof("Run transitioned to: %s", run.Status)
	return run, nil
}

// UpdateDependencies records which runs satisfied the run's links.
func (s *RunService) UpdateDependencies(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunDependencies) (*models.Run, error) {
	return s.update(ctx, txOrNil, id, update.ETag, func(run *models.Run) {
		run.Dependencies = update.Dependencies
	})
}

// UpdateWorkspace records the directory the run executes in.
func (s *RunService) UpdateWorkspace(ctx context.Context, txOrNil *store.Tx, id models.RunID, update dto.UpdateRunWorkspace) (*models.Run, error) {
	return s.update(ctx, txOrNil, id, update.ETag, func(run *models.Run) {
		run.Workspace = update.Workspace
	})
}

// FindReusable returns the most recent succeeded run of the job with the specified fingerprint.
// Returns gerror.ErrNotFound if there is no such run.
func (s *RunService) FindReusable(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, fingerprint string) (*models.Run, error) {
	return s.runStore.ReadLatestSucceeded(ctx, txOrNil, jobID, fingerprint)
}

// ListByJob lists the run history of a job, newest first. Returns true if there are more runs.
func (s *RunService) ListByJob(ctx context.Context, txOrNil *store.Tx, jobID models.JobID, pagination models.Pagination) ([]*models.Run, bool, error) {
	return s.runStore.ListByJob(ctx, txOrNil, jobID, pagination)
}

// ListByPlan lists the runs created for a plan, in creation order.
func (s *RunService) ListByPlan(ctx context.Context, txOrNil *store.Tx, planID models.PlanID) ([]*models.Run, error) {
	return s.runStore.ListByPlan(ctx, txOrNil, planID)
}

// ListUnfinished lists every run that has not reached a terminal status, oldest first.
func (s *RunService) ListUnfinished(ctx context.Context, txOrNil *store.Tx) ([]*models.Run, error) {
	return s.runStore.ListUnfinished(ctx, txOrNil)
}

func (s *RunService) update(ctx context.Context, txOrNil *store.Tx, id models.RunID, eTag models.ETag, mutate func(run *models.Run)) (*models.Run, error) {
	var run *models.Run
	err := s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		var err error
		run, err = s.runStore.Read(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("error reading run: %w", err)
		}
		if run.Status.HasFinished() {
			return gerror.NewErrValidationFailed(fmt.Sprintf("Run %s has finished and can no longer be modified", run.ID))
		}
		run.ETag = models.GetETag(run, eTag)
		run.UpdatedAt = models.NewTime(s.clock.Now())
		mutate(run)
		err = s.runStore.Update(ctx, tx, run)
		if err != nil {
			return fmt.Errorf("error updating run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}
