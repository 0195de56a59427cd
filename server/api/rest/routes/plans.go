package routes

import (
	"fmt"

	"github.com/buildbeaver/depchain/common/models"
)

func MakePlanLink(rctx RequestContext, planID models.PlanID) string {
	return fmt.Sprintf("%s/api/v1/plans/%s", rctx, planID)
}

func MakePlanRunsLink(rctx RequestContext, planID models.PlanID) string {
	return fmt.Sprintf("%s/runs", MakePlanLink(rctx, planID))
}

func MakePlanEventsLink(rctx RequestContext, planID models.PlanID) string {
	return fmt.Sprintf("%s/events", MakePlanLink(rctx, planID))
}

// MakePlanEventStreamLink returns the server-sent events stream for a plan.
func MakePlanEventStreamLink(rctx RequestContext, planID models.PlanID) string {
	return fmt.Sprintf("%s/api/v1/events?stream=%s", rctx, planID)
}
