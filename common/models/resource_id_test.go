package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunIDJSON(t *testing.T) {
	id := NewRunID()
	buf, err := json.Marshal(id)
	require.NoError(t, err)

	var id2 RunID
	require.NoError(t, json.Unmarshal(buf, &id2))
	require.Equal(t, id, id2)

	parsed, err := ParseRunID(id.String())
	require.NoError(t, err)
	require.True(t, parsed.Equal(id.ResourceID))
}

func TestParseTypedIDs(t *testing.T) {
	_, err := ParseRunID(NewPlanID().String())
	require.Error(t, err)
	_, err = ParseArtifactID("artifact:not-a-uuid")
	require.Error(t, err)
	_, err = ParseResourceID("nokind")
	require.Error(t, err)

	var id ResourceID
	require.NoError(t, id.Scan(nil))
	require.False(t, id.Valid())
	value, err := id.Value()
	require.NoError(t, err)
	require.Nil(t, value)
}
