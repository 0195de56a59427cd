package server

import (
	"net/http"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
	"github.com/buildbeaver/depchain/server/services"
)

type RunAPI struct {
	runService      services.RunService
	artifactService services.ArtifactService
	*APIBase
}

func NewRunAPI(
	runService services.RunService,
	artifactService services.ArtifactService,
	logFactory logger.LogFactory) *RunAPI {
	return &RunAPI{
		runService:      runService,
		artifactService: artifactService,
		APIBase:         NewAPIBase(logFactory("RunAPI")),
	}
}

func (a *RunAPI) Get(w http.ResponseWriter, r *http.Request) {
	runID, err := routes.RunIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	run, err := a.runService.Read(r.Context(), nil, runID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakeRun(routes.RequestCtx(r), run))
}

// ListArtifacts lists the artifacts published by the run.
func (a *RunAPI) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, err := routes.RunIDParam(r)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	// Read the run first so that an unknown run is a 404 rather than an empty list
	_, err = a.runService.Read(r.Context(), nil, runID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	artifacts, err := a.artifactService.ListByRun(r.Context(), nil, runID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	docs := documents.MakeArtifacts(routes.RequestCtx(r), artifacts)
	res := documents.NewListResponse(models.ArtifactResourceKind, routes.MakeRunArtifactsLink(routes.RequestCtx(r), runID), nil, docs, false)
	a.JSON(w, r, res)
}
