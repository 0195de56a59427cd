package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/r3labs/sse"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/services"
)

const (
	// streamSweepInterval is how often an open plan stream is checked for removal.
	streamSweepInterval = time.Minute
	// maxStreamLifetime bounds how long a stream is kept for a plan that never finishes.
	maxStreamLifetime = 24 * time.Hour
)

// EventAPI serves a server-sent events stream per plan, fed by the event service. Streams are created
// when the first client subscribes and removed once the plan has finished.
type EventAPI struct {
	eventService services.EventService
	sseServer    *sse.Server
	clock        clock.Clock
	unsubscribe  func()

	// streamsMu serializes creation and removal of streams.
	streamsMu sync.Mutex
	streams   map[models.PlanID]*streamState
	*APIBase
}

type streamState struct {
	createdAt time.Time
	timer     *clock.Timer
}

func NewEventAPI(
	eventService services.EventService,
	clk clock.Clock,
	logFactory logger.LogFactory) *EventAPI {
	sseServer := sse.New()
	// Clients catch up on missed events through the plan events endpoint
	sseServer.AutoReplay = false
	a := &EventAPI{
		eventService: eventService,
		sseServer:    sseServer,
		clock:        clk,
		streams:      make(map[models.PlanID]*streamState),
		APIBase:      NewAPIBase(logFactory("EventAPI")),
	}
	a.unsubscribe = eventService.Subscribe(a.forward)
	return a
}

// Stream serves the server-sent events stream for the plan named by the 'stream' query parameter.
// Each message carries an event document; the message id is the event's sequence number and the
// message event is the event type.
func (a *EventAPI) Stream(w http.ResponseWriter, r *http.Request) {
	planID, err := models.ParsePlanID(r.URL.Query().Get("stream"))
	if err != nil {
		a.Error(w, r, gerror.NewErrInvalidQueryParameter("error parsing query parameter 'stream'").Wrap(err))
		return
	}
	if _, ok := w.(http.CloseNotifier); !ok {
		a.Error(w, r, gerror.NewErrInternal().Wrap(errors.New("error event streams are not supported by this response writer")))
		return
	}
	a.ensureStream(planID)
	a.Debugf("Client subscribed to events for plan %s", planID)
	a.sseServer.HTTPHandler(w, r)
}

// Close removes every stream, disconnecting all subscribed clients, and stops forwarding events.
// Call Close before shutting down the HTTP server, since open streams otherwise keep requests running.
func (a *EventAPI) Close() {
	a.unsubscribe()
	a.streamsMu.Lock()
	defer a.streamsMu.Unlock()
	for planID, state := range a.streams {
		state.timer.Stop()
		delete(a.streams, planID)
	}
	a.sseServer.Close()
}

// forward publishes an event to the plan's stream, if anyone is subscribed to it.
// Called from the publisher's goroutine.
func (a *EventAPI) forward(event *models.Event) {
	streamID := event.PlanID.String()
	if !a.sseServer.StreamExists(streamID) {
		return
	}
	data, err := json.Marshal(documents.MakeEvent(event))
	if err != nil {
		a.Warnf("Unable to marshal %s event for plan %s: %s", event.Type, event.PlanID, err)
		return
	}
	a.sseServer.Publish(streamID, &sse.Event{
		ID:    []byte(event.SequenceNumber.String()),
		Event: []byte(event.Type.String()),
		Data:  data,
	})
}

func (a *EventAPI) ensureStream(planID models.PlanID) {
	a.streamsMu.Lock()
	defer a.streamsMu.Unlock()
	if _, ok := a.streams[planID]; ok {
		return
	}
	a.sseServer.CreateStream(planID.String())
	state := &streamState{createdAt: a.clock.Now()}
	state.timer = a.clock.AfterFunc(streamSweepInterval, func() { a.sweep(planID) })
	a.streams[planID] = state
}

// sweep removes the plan's stream if the plan has finished (or the stream is too old), and
// otherwise checks again later.
func (a *EventAPI) sweep(planID models.PlanID) {
	finished, err := a.planFinished(planID)
	if err != nil {
		a.Warnf("Unable to check whether plan %s has finished: %s", planID, err)
	}
	a.streamsMu.Lock()
	defer a.streamsMu.Unlock()
	state, ok := a.streams[planID]
	if !ok {
		return
	}
	if finished || a.clock.Since(state.createdAt) > maxStreamLifetime {
		delete(a.streams, planID)
		a.sseServer.RemoveStream(planID.String())
		a.Debugf("Removed event stream for plan %s", planID)
		return
	}
	state.timer = a.clock.AfterFunc(streamSweepInterval, func() { a.sweep(planID) })
}

func (a *EventAPI) planFinished(planID models.PlanID) (bool, error) {
	var last models.EventNumber
	for {
		events, err := a.eventService.FetchEvents(context.Background(), planID, last, defaultEventsLimit)
		if err != nil {
			return false, err
		}
		if len(events) == 0 {
			return false, nil
		}
		for _, event := range events {
			if event.Type == models.PlanFinishedEvent {
				return true, nil
			}
			last = event.SequenceNumber
		}
	}
}
