package client

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
)

// GetRun retrieves a run.
func (a *APIClient) GetRun(ctx context.Context, runID models.RunID) (*documents.Run, error) {
	doc := &documents.Run{}
	err := a.getJSON(ctx, fmt.Sprintf("/api/v1/runs/%s", runID), doc)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListPlanRuns lists the runs created for a plan, in creation order.
func (a *APIClient) ListPlanRuns(ctx context.Context, planID models.PlanID) ([]*documents.Run, error) {
	var runs []*documents.Run
	_, err := a.getList(ctx, fmt.Sprintf("/api/v1/plans/%s/runs", planID), &runs)
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ListRunArtifacts lists the artifacts published by a run.
func (a *APIClient) ListRunArtifacts(ctx context.Context, runID models.RunID) ([]*documents.Artifact, error) {
	var artifacts []*documents.Artifact
	_, err := a.getList(ctx, fmt.Sprintf("/api/v1/runs/%s/artifacts", runID), &artifacts)
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// GetArtifactData returns a reader over the content of an artifact.
// The caller is responsible for closing the reader.
func (a *APIClient) GetArtifactData(ctx context.Context, artifactID models.ArtifactID) (io.ReadCloser, error) {
	code, _, body, err := a.getStream(ctx, nil, fmt.Sprintf("/api/v1/artifacts/%s/data", artifactID))
	if err != nil {
		return nil, err
	}
	if !a.isOneOf(code, []int{http.StatusOK}) {
		defer body.Close()
		buf, _ := io.ReadAll(body)
		return nil, a.makeHTTPError(code, buf)
	}
	return body, nil
}
