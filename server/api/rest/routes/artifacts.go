package routes

import (
	"fmt"

	"github.com/buildbeaver/depchain/common/models"
)

func MakeArtifactLink(rctx RequestContext, artifactID models.ArtifactID) string {
	return fmt.Sprintf("%s/api/v1/artifacts/%s", rctx, artifactID)
}

func MakeArtifactDataLink(rctx RequestContext, artifactID models.ArtifactID) string {
	return fmt.Sprintf("%s/data", MakeArtifactLink(rctx, artifactID))
}
