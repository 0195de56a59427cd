//go:build !windows
// +build !windows

package proc_lock

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateLockFile(t *testing.T) {
	filename := WorkDirLockFile(t.TempDir())

	file, err := CreateLockFile(filename)
	require.NoError(t, err)
	defer file.Close()

	pid, err := GetLockFilePid(filename)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	// flock locks are per open file description, so a second open in this process conflicts
	_, err = CreateLockFile(filename)
	require.Error(t, err)
}
