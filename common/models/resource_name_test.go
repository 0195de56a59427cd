package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceNameValidate(t *testing.T) {
	require.NoError(t, ResourceName("Kotlin_Docs-Build").Validate())
	require.Error(t, ResourceName("").Validate())
	require.Error(t, ResourceName("has space").Validate())
	require.Error(t, ResourceName("dotted.name").Validate())
	require.Error(t, ResourceName(strings.Repeat("a", resourceNameMaxLength+1)).Validate())
	require.NoError(t, ResourceName(strings.Repeat("a", resourceNameMaxLength)).Validate())
}
