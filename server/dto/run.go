package dto

import (
	"github.com/buildbeaver/depchain/common/models"
)

type UpdateRunStatus struct {
	Status models.RunStatus
	// Error must be set when moving to failed or not_started.
	Error *models.Error
	ETag  models.ETag
}

type UpdateRunDependencies struct {
	Dependencies models.RunDependencies
	ETag         models.ETag
}

type UpdateRunWorkspace struct {
	Workspace string
	ETag      models.ETag
}
