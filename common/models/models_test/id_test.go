package models_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/common/models"
)

func Test_planID(t *testing.T) {
	id := models.NewPlanID()
	buf, err := json.Marshal(id)
	require.Nil(t, err)
	id2 := models.PlanID{}
	err = json.Unmarshal(buf, &id2)
	require.Nil(t, err)
	require.Equal(t, id, id2)

	parsed, err := models.ParsePlanID(id.String())
	require.Nil(t, err)
	require.Equal(t, id.String(), parsed.String())
}
