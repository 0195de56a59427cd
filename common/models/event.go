package models

import (
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

type EventID struct {
	ResourceID
}

func NewEventID() EventID {
	return EventID{ResourceID: NewResourceID(EventResourceKind)}
}

type EventNumber uint64

func (n EventNumber) String() string {
	return strconv.FormatUint(uint64(n), 10)
}

type EventType string

func (t EventType) String() string {
	return string(t)
}

type EventMetadata struct {
	ID        EventID `json:"id" db:"event_id"`
	CreatedAt Time    `json:"created_at" db:"event_created_at"`
	// SequenceNumber is a monotonically increasing number to provide a well-defined order for events within a plan.
	SequenceNumber EventNumber `json:"sequence_number" db:"event_sequence_number"`
}

type EventData struct {
	// PlanID is the plan that generated this event.
	PlanID PlanID    `json:"plan_id" db:"event_plan_id"`
	Type   EventType `json:"type" db:"event_type"`
	// RunID is the run the event relates to; unset for plan level events.
	RunID RunID `json:"run_id,omitempty" db:"event_run_id"`
	// JobID is the job the event relates to; for plan level events it is the plan's root job.
	JobID  JobID     `json:"job_id" db:"event_job_id"`
	Status RunStatus `json:"status,omitempty" db:"event_status"`
	Error  *Error    `json:"error,omitempty" db:"event_error"`
}

type Event struct {
	EventMetadata
	EventData
}

func NewEvent(now Time, sequenceNumber EventNumber, eventData *EventData) *Event {
	return &Event{
		EventMetadata: EventMetadata{
			ID:             NewEventID(),
			CreatedAt:      now,
			SequenceNumber: sequenceNumber,
		},
		EventData: *eventData,
	}
}

func (m *Event) GetCreatedAt() Time {
	return m.CreatedAt
}

func (m *Event) GetID() ResourceID {
	return m.ID.ResourceID
}

func (m *Event) GetKind() ResourceKind {
	return EventResourceKind
}

func (m *Event) Validate() error {
	var result *multierror.Error
	if !m.ID.Valid() {
		result = multierror.Append(result, errors.New("error id must be set"))
	}
	if m.SequenceNumber == 0 {
		result = multierror.Append(result, errors.New("error sequence number must be set"))
	}
	if err := m.EventData.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (m *EventData) Validate() error {
	var result *multierror.Error
	if !m.PlanID.Valid() {
		result = multierror.Append(result, errors.New("error plan id must be set"))
	}
	if m.Type == "" {
		result = multierror.Append(result, errors.Errorf("error event type must be specified"))
	}
	if m.Type == RunStatusChangedEvent && !m.RunID.Valid() {
		result = multierror.Append(result, errors.New("error run id must be set"))
	}
	return result.ErrorOrNil()
}
