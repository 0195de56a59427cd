package models

const (
	// PlanQueuedEvent notifies subscribers that a plan was accepted for execution.
	PlanQueuedEvent EventType = "PlanQueued"

	// RunStatusChangedEvent notifies subscribers that the status of a run has changed.
	// Status is the new status, Error is set for failed and not_started runs.
	RunStatusChangedEvent EventType = "RunStatusChanged"

	// PlanFinishedEvent notifies subscribers that every run of a plan has finished.
	// Status is the status of the root job's run.
	PlanFinishedEvent EventType = "PlanFinished"
)

func NewPlanQueuedEventData(plan *ExecutionPlan) *EventData {
	return &EventData{
		PlanID: plan.ID,
		Type:   PlanQueuedEvent,
		JobID:  plan.Root,
	}
}

func NewRunStatusChangedEventData(run *Run) *EventData {
	return &EventData{
		PlanID: run.PlanID,
		Type:   RunStatusChangedEvent,
		RunID:  run.ID,
		JobID:  run.JobID,
		Status: run.Status,
		Error:  run.Error,
	}
}

func NewPlanFinishedEventData(plan *ExecutionPlan, rootStatus RunStatus, err *Error) *EventData {
	return &EventData{
		PlanID: plan.ID,
		Type:   PlanFinishedEvent,
		JobID:  plan.Root,
		Status: rootStatus,
		Error:  err,
	}
}
