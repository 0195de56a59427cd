package documents

import (
	"github.com/buildbeaver/depchain/common/models"
)

type Event struct {
	ID        models.EventID `json:"id"`
	CreatedAt models.Time    `json:"created_at"`
	// SequenceNumber is a monotonically increasing number to provide a well-defined order for events within a plan.
	SequenceNumber models.EventNumber `json:"sequence_number"`
	// PlanID is the plan that generated this event
	PlanID models.PlanID `json:"plan_id"`
	// Type identifies the type of event, determining which of the remaining fields are set
	Type models.EventType `json:"type"`
	// RunID is the run the event relates to, or empty for plan events
	RunID *models.RunID `json:"run_id,omitempty"`
	// JobID is the job the event relates to; for plan events it is the plan's root job
	JobID  models.JobID     `json:"job_id"`
	Status models.RunStatus `json:"status,omitempty"`
	Error  *models.Error    `json:"error,omitempty"`
}

func MakeEvent(event *models.Event) *Event {
	doc := &Event{
		ID:             event.ID,
		CreatedAt:      event.CreatedAt,
		SequenceNumber: event.SequenceNumber,
		PlanID:         event.PlanID,
		Type:           event.Type,
		JobID:          event.JobID,
		Status:         event.Status,
		Error:          event.Error,
	}
	if event.RunID.Valid() {
		runID := event.RunID
		doc.RunID = &runID
	}
	return doc
}

func MakeEvents(events []*models.Event) []*Event {
	docs := make([]*Event, 0, len(events))
	for _, event := range events {
		docs = append(docs, MakeEvent(event))
	}
	return docs
}
