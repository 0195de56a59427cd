package local_backend

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/dto"
)

func TestTruncateString(t *testing.T) {
	require.Equal(t, "comp", truncateString("compile", 4))
	require.Equal(t, "compile", truncateString("compile", 10))
	require.Equal(t, "héll", truncateString("héllo", 4))
}

func TestProgressReporterPlainOutput(t *testing.T) {
	pipeline, err := dto.NewPipeline(nil, nil)
	require.NoError(t, err)
	reporter := NewProgressReporter(pipeline, true)
	out := &bytes.Buffer{}
	reporter.out = out

	reporter.ShowPlan(&models.ExecutionPlan{
		Root: "package",
		Steps: []*models.PlanStep{
			{JobID: "compile", Action: models.StepActionReuse, ReusedRun: &models.Run{ID: models.NewRunID()}},
			{JobID: "package", Action: models.StepActionBuild},
		},
	})
	reporter.onEvent(&models.Event{EventData: models.EventData{
		Type:   models.RunStatusChangedEvent,
		JobID:  "package",
		Status: models.RunStatusRunning,
	}})
	reporter.onEvent(&models.Event{EventData: models.EventData{
		Type:  models.PlanFinishedEvent,
		JobID: "package",
	}})

	require.Contains(t, out.String(), "compile: reused run ")
	require.Contains(t, out.String(), "package: running\n")
	require.NotContains(t, out.String(), "finished")
}
