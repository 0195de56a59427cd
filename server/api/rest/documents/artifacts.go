package documents

import (
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/routes"
)

type Artifact struct {
	baseResourceDocument

	ID        models.ArtifactID `json:"id"`
	CreatedAt models.Time       `json:"created_at"`
	// RunID is the run that published the artifact.
	RunID models.RunID `json:"run_id"`
	// Path is the path of the file within the run's output area.
	Path string `json:"path"`
	// HashType is the type of hashing algorithm used to hash the data.
	HashType models.HashType `json:"hash_type"`
	// Hash is the hex-encoded hash of the artifact data.
	Hash string `json:"hash"`
	// Size of the artifact file in bytes.
	Size uint64 `json:"size"`
	// Mime type of the artifact, or empty if not known.
	Mime string `json:"mime"`

	RunURL  string `json:"run_url"`
	DataURL string `json:"data_url"`
}

func MakeArtifact(rctx routes.RequestContext, artifact *models.Artifact) *Artifact {
	return &Artifact{
		baseResourceDocument: baseResourceDocument{
			URL: routes.MakeArtifactLink(rctx, artifact.ID),
		},
		ID:        artifact.ID,
		CreatedAt: artifact.CreatedAt,
		RunID:     artifact.RunID,
		Path:      artifact.Path,
		HashType:  artifact.HashType,
		Hash:      artifact.Hash,
		Size:      artifact.Size,
		Mime:      artifact.Mime,
		RunURL:    routes.MakeRunLink(rctx, artifact.RunID),
		DataURL:   routes.MakeArtifactDataLink(rctx, artifact.ID),
	}
}

func MakeArtifacts(rctx routes.RequestContext, artifacts []*models.Artifact) []*Artifact {
	docs := make([]*Artifact, 0, len(artifacts))
	for _, model := range artifacts {
		docs = append(docs, MakeArtifact(rctx, model))
	}
	return docs
}
