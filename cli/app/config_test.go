package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/buildbeaver/depchain/server/store"
)

func TestNewCLIConfig(t *testing.T) {
	workDir := t.TempDir()
	config := NewCLIConfig(workDir, []string{"ci"}, 3, nil)

	stateDir := filepath.Join(workDir, StateDirName)
	require.Equal(t, stateDir, config.StateDir)
	require.Equal(t, store.Sqlite, config.DatabaseConfig.Driver)
	require.Equal(t, filepath.Join(stateDir, "sqlite.db"), config.DatabaseFilePath)
	require.Equal(t, []string{"ci"}, []string(config.PipelineConfig.Paths))
	require.Equal(t, workDir, config.PipelineConfig.WorkDir)
	require.Equal(t, 3, config.SchedulerConfig.ParallelJobs)
	require.Nil(t, config.ExecutorConfig.Output)

	serverConfig := config.ServerConfig("127.0.0.1:3001")
	require.Equal(t, "127.0.0.1:3001", serverConfig.APIServerConfig.Address)
	require.Equal(t, config.DatabaseConfig.ConnectionString, serverConfig.DatabaseConfig.ConnectionString)
	require.Equal(t, config.OrchestratorConfig.WorkspacesDir, serverConfig.OrchestratorConfig.WorkspacesDir)
	require.Equal(t, config.BlobStoreConfig.LocalBlobStoreDir, serverConfig.BlobStoreConfig.LocalBlobStoreDir)
}
