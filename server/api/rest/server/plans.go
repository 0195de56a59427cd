package server

import (
	"net/http"
	"strconv"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
	"github.com/buildbeaver/depchain/server/services"
)

const defaultEventsLimit = 1000

type PlanAPI struct {
	runService   services.RunService
	eventService services.EventService
	*APIBase
}

func NewPlanAPI(
	runService services.RunService,
	eventService services.EventService,
	logFactory logger.LogFactory) *PlanAPI {
	return &PlanAPI{
		runService:   runService,
		eventService: eventService,
		APIBase:      NewAPIBase(logFactory("PlanAPI")),
	}
}

// ListRuns lists the runs created for the plan, in creation order. Steps that reused a previous run
// have no run of their own in the plan.
func (a *PlanAPI) ListRuns(w http.ResponseWriter, r *http.Request) {
	planID, err := routes.PlanIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	runs, err := a.runService.ListByPlan(r.Context(), nil, planID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	docs := documents.MakeRuns(routes.RequestCtx(r), runs)
	res := documents.NewListResponse(models.RunResourceKind, routes.MakePlanRunsLink(routes.RequestCtx(r), planID), nil, docs, false)
	a.JSON(w, r, res)
}

// GetEvents returns the events of the plan with sequence numbers greater than the 'last' query parameter.
func (a *PlanAPI) GetEvents(w http.ResponseWriter, r *http.Request) {
	planID, err := routes.PlanIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}

	// Parse query parameters, if present
	var (
		lastEventNumber = models.EventNumber(0)
		limit           = defaultEventsLimit
	)
	queryParams := r.URL.Query()
	lastStr := queryParams.Get("last")
	if lastStr != "" {
		lastInt, err := strconv.ParseUint(lastStr, 10, 64)
		if err != nil {
			a.Error(w, r, gerror.NewErrInvalidQueryParameter("error parsing query parameter 'last'").Wrap(err))
			return
		}
		lastEventNumber = models.EventNumber(lastInt)
	}
	limitStr := queryParams.Get("limit")
	if limitStr != "" {
		limitInt, err := strconv.Atoi(limitStr)
		if err != nil {
			a.Error(w, r, gerror.NewErrInvalidQueryParameter("error parsing query parameter 'limit'").Wrap(err))
			return
		}
		limit = limitInt
	}

	events, err := a.eventService.FetchEvents(r.Context(), planID, lastEventNumber, limit)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.JSON(w, r, documents.MakeEvents(events))
}
