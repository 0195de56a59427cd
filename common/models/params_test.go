package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParams(t *testing.T) {
	params := Params{"env.LANG": "en", "channel": "stable"}
	merged := params.Merge(Params{"channel": "dev"})
	require.Equal(t, "dev", merged["channel"])
	require.Equal(t, "stable", params["channel"], "merge must not mutate the receiver")
	require.Equal(t, []string{"LANG=en"}, merged.EnvVars())

	overrides, err := ParseParamOverrides([]string{"channel=dev", "expr=a=b"})
	require.NoError(t, err)
	require.Equal(t, Params{"channel": "dev", "expr": "a=b"}, overrides)

	_, err = ParseParamOverrides([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseParamOverrides([]string{"=x"})
	require.Error(t, err)
}

func TestParamsScan(t *testing.T) {
	params := Params{"a": "1"}
	value, err := params.Value()
	require.NoError(t, err)

	var scanned Params
	require.NoError(t, scanned.Scan(value))
	require.Equal(t, params, scanned)
}
