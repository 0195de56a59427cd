package dto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/gerror"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
)

func job(id models.JobID, targets ...models.JobID) *models.BuildJob {
	j := &models.BuildJob{ID: id, Commands: []string{"true"}}
	for _, target := range targets {
		j.Dependencies = append(j.Dependencies, &models.DependencyLink{
			Owner:               id,
			Target:              target,
			ReuseBuilds:         models.ReusePolicyReuseExisting,
			OnDependencyFailure: models.FailurePolicyFailToStart,
		})
	}
	return j
}

func TestPipeline(t *testing.T) {
	pipeline, err := dto.NewPipeline([]string{"a.yml", "b.yml"}, []*models.BuildJob{
		job("package", "compile", "lint"),
		job("compile"),
		job("lint"),
		job("docs"),
	})
	require.NoError(t, err)
	require.Equal(t, 4, pipeline.Len())

	var order []models.JobID
	for _, j := range pipeline.Jobs() {
		order = append(order, j.ID)
	}
	require.Equal(t, []models.JobID{"compile", "docs", "lint", "package"}, order)

	closure, err := pipeline.Closure("package")
	require.NoError(t, err)
	require.Len(t, closure, 3)
	require.Equal(t, models.JobID("package"), closure[2].ID)

	closure, err = pipeline.Closure("docs")
	require.NoError(t, err)
	require.Len(t, closure, 1)

	_, err = pipeline.Job("missing")
	require.True(t, gerror.IsNotFound(err))
}

func TestPipelineRejectsInvalidJobs(t *testing.T) {
	bad := job("compile", "compile")
	_, err := dto.NewPipeline(nil, []*models.BuildJob{bad})
	require.Error(t, err)
	require.True(t, gerror.IsValidationFailed(err))

	_, err = dto.NewPipeline(nil, []*models.BuildJob{job("package", "compile")})
	require.True(t, gerror.IsUnresolvedDependency(err))
}
