package artifacts

import (
	"context"

	"github.com/doug-martin/goqu/v9"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/store"
)

func init() {
	store.MustDBModel(&models.Artifact{})
}

type ArtifactStore struct {
	table *store.ResourceTable
}

func NewStore(db *store.DB, logFactory logger.LogFactory) *ArtifactStore {
	return &ArtifactStore{
		table: store.NewResourceTable(db, logFactory, &models.Artifact{}),
	}
}

// Create a new artifact.
// Returns gerror.ErrAlreadyExists if the run already has an artifact at the same path.
func (d *ArtifactStore) Create(ctx context.Context, txOrNil *store.Tx, artifact *models.Artifact) error {
	return d.table.Create(ctx, txOrNil, artifact)
}

// Read an existing artifact, looking it up by ID.
// Returns gerror.ErrNotFound if the artifact does not exist.
func (d *ArtifactStore) Read(ctx context.Context, txOrNil *store.Tx, id models.ArtifactID) (*models.Artifact, error) {
	artifact := &models.Artifact{}
	return artifact, d.table.ReadByID(ctx, txOrNil, id.ResourceID, artifact)
}

// ListByRun lists every artifact published by a run, ordered by path.
func (d *ArtifactStore) ListByRun(ctx context.Context, txOrNil *store.Tx, runID models.RunID) ([]*models.Artifact, error) {
	ds := d.table.Dialect().
		From(d.table.TableName()).
		Select(&models.Artifact{}).
		Where(goqu.Ex{"artifact_run_id": runID}).
		Order(goqu.C("artifact_path").Asc())
	var artifacts []*models.Artifact
	if err := d.table.ListAllIn(ctx, txOrNil, &artifacts, ds); err != nil {
		return nil, err
	}
	return artifacts, nil
}
