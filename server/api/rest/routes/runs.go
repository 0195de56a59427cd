package routes

import (
	"fmt"

	"github.com/buildbeaver/depchain/common/models"
)

func MakeRunLink(rctx RequestContext, runID models.RunID) string {
	return fmt.Sprintf("%s/api/v1/runs/%s", rctx, runID)
}

func MakeRunArtifactsLink(rctx RequestContext, runID models.RunID) string {
	return fmt.Sprintf("%s/artifacts", MakeRunLink(rctx, runID))
}
