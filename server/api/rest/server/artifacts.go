package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
	"github.com/buildbeaver/depchain/server/services"
)

type ArtifactAPI struct {
	artifactService services.ArtifactService
	*APIBase
}

func NewArtifactAPI(
	artifactService services.ArtifactService,
	logFactory logger.LogFactory) *ArtifactAPI {
	return &ArtifactAPI{
		artifactService: artifactService,
		APIBase:         NewAPIBase(logFactory("ArtifactAPI")),
	}
}

func (a *ArtifactAPI) Get(w http.ResponseWriter, r *http.Request) {
	artifactID, err := routes.ArtifactIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	artifact, err := a.artifactService.Read(r.Context(), nil, artifactID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakeArtifact(routes.RequestCtx(r), artifact))
}

func (a *ArtifactAPI) GetData(w http.ResponseWriter, r *http.Request) {
	artifactID, err := routes.ArtifactIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	artifact, err := a.artifactService.Read(r.Context(), nil, artifactID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	reader, err := a.artifactService.GetArtifactData(r.Context(), artifact, 0, -1)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name()))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatUint(artifact.Size, 10))
	w.WriteHeader(http.StatusOK)

	_, err = io.Copy(w, reader)
	if err != nil {
		a.Errorf("error writing artifact data to response body: %s", err)
	}
}
