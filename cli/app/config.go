package app

import (
	"io"
	"path/filepath"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	server_app "github.com/buildbeaver/depchain/server/app"
	"github.com/buildbeaver/depchain/server/services/blob"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/queue"
	"github.com/buildbeaver/depchain/server/store"
)

// StateDirName is the directory in the work dir that the CLI keeps run history, the output area,
// job workspaces and logs in.
const StateDirName = ".depchain"

type CLIConfig struct {
	// WorkDir is the directory the pipeline is loaded from.
	WorkDir string
	// StateDir is where all state of local runs is kept.
	StateDir             string
	DatabaseFilePath     string
	LogFilePath          logger.LogFilePath
	LogLevels            logger.LogLevelConfig
	BlobStoreConfig      server_app.BlobStoreConfig
	DatabaseConfig       store.DatabaseConfig
	PipelineConfig       pipeline.PipelineConfig
	ExecutorConfig       runner.ExecutorConfig
	OrchestratorConfig   runner.OrchestratorConfig
	SchedulerConfig      runner.SchedulerConfig
	TimeoutCheckerConfig queue.TimeoutCheckerConfig
}

// NewCLIConfig returns the config for running the pipeline in workDir locally. Command output is
// copied to output if it is not nil.
func NewCLIConfig(workDir string, pipelinePaths []string, parallelJobs int, output io.Writer) *CLIConfig {
	stateDir := filepath.Join(workDir, StateDirName)
	databaseFilePath := filepath.Join(stateDir, "sqlite.db")

	pipelineConfig := pipeline.NewDefaultPipelineConfig(workDir)
	pipelineConfig.Paths = pipelinePaths

	return &CLIConfig{
		WorkDir:          workDir,
		StateDir:         stateDir,
		DatabaseFilePath: databaseFilePath,
		LogFilePath:      logger.LogFilePath(filepath.Join(stateDir, "depchain.log")),
		BlobStoreConfig: server_app.BlobStoreConfig{
			BlobStoreType:     blob.LocalBlobStoreType.String(),
			LocalBlobStoreDir: filepath.Join(stateDir, "blob"),
		},
		DatabaseConfig: store.DatabaseConfig{
			ConnectionString:   server_app.SQLiteConnectionString(stateDir),
			Driver:             store.Sqlite,
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		},
		PipelineConfig: pipelineConfig,
		ExecutorConfig: runner.ExecutorConfig{
			WorkDir:    workDir,
			StagingDir: filepath.Join(stateDir, "staging"),
			LogDir:     filepath.Join(stateDir, "logs"),
			Output:     output,
		},
		OrchestratorConfig: runner.OrchestratorConfig{
			WorkspacesDir: filepath.Join(stateDir, "workspaces"),
			BuildTimeout:  runner.DefaultBuildTimeout,
		},
		SchedulerConfig: runner.SchedulerConfig{
			ParallelJobs: parallelJobs,
		},
		TimeoutCheckerConfig: queue.NewDefaultTimeoutCheckerConfig(),
	}
}

// ServerConfig returns the config for serving the API over the same state the CLI uses.
func (c *CLIConfig) ServerConfig(address string) *server_app.ServerConfig {
	config := server_app.NewDefaultServerConfig(c.StateDir, c.WorkDir)
	config.APIServerConfig.Address = address
	config.PipelineConfig = c.PipelineConfig
	config.SchedulerConfig = c.SchedulerConfig
	config.LogLevels = c.LogLevels
	return config
}
