package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store"
)

type EventService struct {
	db         *store.DB
	eventStore store.EventStore
	clock      clock.Clock
	logger.Log

	subscribersMu sync.RWMutex
	subscribers   map[int]func(event *models.Event)
	nextSubID     int
}

func NewEventService(
	db *store.DB,
	eventStore store.EventStore,
	clk clock.Clock,
	logFactory logger.LogFactory,
) *EventService {
	return &EventService{
		db:          db,
		eventStore:  eventStore,
		clock:       clk,
		Log:         logFactory("EventService"),
		subscribers: make(map[int]func(event *models.Event)),
	}
}

// PublishEvent publishes a new event, allocating it the next sequence number of its plan.
// Subscribers are notified once the event has been written, which is before txOrNil (if supplied) commits.
func (s *EventService) PublishEvent(ctx context.Context, txOrNil *store.Tx, eventData *models.EventData) (*models.Event, error) {
	err := eventData.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "error validating event data")
	}
	var event *models.Event
	err = s.db.WithTx(ctx, txOrNil, func(tx *store.Tx) error {
		sequenceNumber, err := s.eventStore.IncrementEventCounter(ctx, tx, eventData.PlanID)
		if err != nil {
			return fmt.Errorf("error incrementing event counter: %w", err)
		}
		event, err = s.eventStore.Create(ctx, tx, models.NewTime(s.clock.Now()), sequenceNumber, eventData)
		if err != nil {
			return fmt.Errorf("error creating event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.WithFields(logger.Fields{
		"plan_id":         event.PlanID,
		"sequence_number": event.SequenceNumber,
		"job_id":          event.JobID,
	}).Tracef("Published %s event", event.Type)
	s.notify(event)
	return event, nil
}

// FetchEvents fetches new events for a given plan, i.e. those with event numbers greater than lastEventNumber.
// limit specifies the maximum number of events to return.
// Events will be returned in order of event number; event numbers provide a unique ordering within a plan.
// If no new events are available then the function returns immediately.
func (s *EventService) FetchEvents(
	ctx context.Context,
	planID models.PlanID,
	lastEventNumber models.EventNumber,
	limit int,
) ([]*models.Event, error) {
	if limit <= 0 {
		limit = models.DefaultPaginationLimit
	}
	return s.eventStore.FindEvents(ctx, nil, planID, lastEventNumber, limit)
}

// Subscribe registers fn to be called for every event published from now on, for every plan.
// fn is called synchronously from the publisher's goroutine and must not block.
// Call the returned function to unsubscribe.
func (s *EventService) Subscribe(fn func(event *models.Event)) (unsubscribe func()) {
	s.subscribersMu.Lock()
	defer s.subscribersMu.Unlock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.subscribersMu.Lock()
			defer s.subscribersMu.Unlock()
			delete(s.subscribers, id)
		})
	}
}

func (s *EventService) notify(event *models.Event) {
	s.subscribersMu.RLock()
	defer s.subscribersMu.RUnlock()
	for _, fn := range s.subscribers {
		fn(event)
	}
}
