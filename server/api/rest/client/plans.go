package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/r3labs/sse"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
)

// watchPollInterval is how often WatchPlan fetches events it may have missed on the stream.
const watchPollInterval = 5 * time.Second

// GetPlanEvents fetches the events of a plan with sequence numbers greater than last, in order.
func (a *APIClient) GetPlanEvents(ctx context.Context, planID models.PlanID, last models.EventNumber) ([]*documents.Event, error) {
	var events []*documents.Event
	err := a.getJSON(ctx, fmt.Sprintf("/api/v1/plans/%s/events?last=%s", planID, last), &events)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// WatchPlan calls handler for each event of the plan, in sequence number order and without duplicates,
// until the plan finishes. Events are received from the plan's event stream as they happen; events
// published before the stream connected (or missed while reconnecting) are fetched from the server.
// Returns the PlanFinished event, or an error if ctx is done first.
func (a *APIClient) WatchPlan(ctx context.Context, planID models.PlanID, handler func(event *documents.Event)) (*documents.Event, error) {
	endpoint, err := a.getRequestEndpoint("/api/v1/events")
	if err != nil {
		return nil, fmt.Errorf("error getting event stream endpoint: %w", err)
	}
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The stream only wakes the watcher up; every event is delivered in order by the loop below
	wakeC := make(chan *documents.Event, 1)
	sseClient := sse.NewClient(endpoint)
	sseClient.Connection = a.httpClient
	go func() {
		err := sseClient.SubscribeWithContext(streamCtx, planID.String(), func(msg *sse.Event) {
			if len(msg.Data) == 0 {
				return
			}
			event := &documents.Event{}
			if err := json.Unmarshal(msg.Data, event); err != nil {
				a.log.Warnf("Ignoring unparseable event on stream for plan %s: %s", planID, err)
				return
			}
			select {
			case wakeC <- event:
			default:
			}
		})
		if err != nil && streamCtx.Err() == nil {
			a.log.Warnf("Event stream for plan %s closed; falling back to polling: %s", planID, err)
		}
	}()

	var (
		last   models.EventNumber
		ticker = time.NewTicker(watchPollInterval)
	)
	defer ticker.Stop()
	deliver := func(event *documents.Event) bool {
		if event.SequenceNumber <= last {
			return false
		}
		last = event.SequenceNumber
		handler(event)
		return event.Type == models.PlanFinishedEvent
	}
	// catchUp fetches and delivers every event after last. Returns the PlanFinished event if it was seen.
	catchUp := func() (*documents.Event, error) {
		events, err := a.GetPlanEvents(ctx, planID, last)
		if err != nil {
			return nil, err
		}
		for _, event := range events {
			if deliver(event) {
				return event, nil
			}
		}
		return nil, nil
	}

	for {
		finished, err := catchUp()
		if err != nil {
			return nil, err
		}
		if finished != nil {
			return finished, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case event := <-wakeC:
			// Deliver directly if it is the next event, otherwise fill the gap on the next catch up
			if event.SequenceNumber == last+1 && deliver(event) {
				return event, nil
			}
		case <-ticker.C:
		}
	}
}
