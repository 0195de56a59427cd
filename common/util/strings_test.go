package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruncateStringToMaxLength(t *testing.T) {
	require.Equal(t, "short", TruncateStringToMaxLength("short", 10))
	require.Equal(t, "depend...", TruncateStringToMaxLength("dependency blocked", 9))
	require.Equal(t, "de", TruncateStringToMaxLength("dependency", 2))
}

func TestFirstLine(t *testing.T) {
	require.Equal(t, "one line", FirstLine(" one line \n"))
	require.Equal(t, "first...", FirstLine("first\nsecond"))
}
