package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner"
	"github.com/buildbeaver/depchain/server/api/rest/server"
	"github.com/buildbeaver/depchain/server/services"
	"github.com/buildbeaver/depchain/server/services/blob"
	"github.com/buildbeaver/depchain/server/services/pipeline"
	"github.com/buildbeaver/depchain/server/services/queue"
	"github.com/buildbeaver/depchain/server/store"
)

const (
	blobSubDir       = "blob"
	workspacesSubDir = "workspaces"
	logsSubDir       = "logs"
	stagingSubDir    = "staging"
	databaseFileName = "sqlite.db"
)

// LogSafeFlags is a list of flags by name whose values are safe to log.
var LogSafeFlags = []string{
	"state_directory",
	"work_directory",
	"pipeline_path",
	"max_jobs_per_file",
	"max_commands_per_job",
	"blob_store_type",
	"blob_store_local_directory",
	"blob_store_aws_s3_bucket_name",
	"blob_store_aws_s3_region",
	"blob_store_aws_s3_access_key_id",
	"blob_store_aws_s3_endpoint",
	"api_server_address",
	"api_server_certificate_file",
	"api_server_allowed_origins",
	"database_driver",
	"parallel_jobs",
	"build_timeout",
	"run_timeout",
	"run_timeout_poll_interval",
	"shell",
	"log_levels",
}

type BlobStoreConfig struct {
	// BlobStoreType specifies which blob store should be used.
	BlobStoreType string
	// LocalBlobStoreDir is the base directory on the local filesystem to store blobs to, if enabled.
	LocalBlobStoreDir string
	// S3BlobStoreConfig contains configuration for the S3 blob store, if enabled.
	S3BlobStoreConfig blob.S3BlobStoreConfig
}

func BlobStoreFactory(config BlobStoreConfig, logFactory logger.LogFactory) (services.BlobStore, error) {
	switch strings.ToLower(config.BlobStoreType) {
	case strings.ToLower(blob.AWSS3BlobStoreType.String()):
		return blob.NewS3BlobStore(config.S3BlobStoreConfig, logFactory)
	case strings.ToLower(blob.LocalBlobStoreType.String()):
		return blob.NewLocalBlobStore(blob.LocalBlobStoreDirectory(config.LocalBlobStoreDir)), nil
	default:
		return nil, fmt.Errorf("error unknown blob store type %q; Options: %s", config.BlobStoreType, strings.Join(blob.BlobStoreTypes(), ", "))
	}
}

type ServerConfig struct {
	BlobStoreConfig      BlobStoreConfig
	APIServerConfig      server.APIServerConfig
	DatabaseConfig       store.DatabaseConfig
	PipelineConfig       pipeline.PipelineConfig
	ExecutorConfig       runner.ExecutorConfig
	OrchestratorConfig   runner.OrchestratorConfig
	SchedulerConfig      runner.SchedulerConfig
	TimeoutCheckerConfig queue.TimeoutCheckerConfig
	LogLevels            logger.LogLevelConfig
}

// NewDefaultServerConfig returns a config that keeps all server state (database, output area,
// workspaces and run logs) under stateDir and loads the pipeline from workDir.
func NewDefaultServerConfig(stateDir string, workDir string) *ServerConfig {
	return &ServerConfig{
		BlobStoreConfig: BlobStoreConfig{
			BlobStoreType:     blob.LocalBlobStoreType.String(),
			LocalBlobStoreDir: filepath.Join(stateDir, blobSubDir),
		},
		APIServerConfig: server.APIServerConfig{
			HTTPServerConfig: server.HTTPServerConfig{
				Address: defaultAPIServerAddress,
			},
		},
		DatabaseConfig: store.DatabaseConfig{
			ConnectionString:   SQLiteConnectionString(stateDir),
			Driver:             store.Sqlite,
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		},
		PipelineConfig: pipeline.NewDefaultPipelineConfig(workDir),
		ExecutorConfig: runner.ExecutorConfig{
			WorkDir:    workDir,
			StagingDir: filepath.Join(stateDir, stagingSubDir),
			LogDir:     filepath.Join(stateDir, logsSubDir),
		},
		OrchestratorConfig: runner.OrchestratorConfig{
			WorkspacesDir: filepath.Join(stateDir, workspacesSubDir),
			BuildTimeout:  runner.DefaultBuildTimeout,
		},
		TimeoutCheckerConfig: queue.NewDefaultTimeoutCheckerConfig(),
	}
}

// SQLiteConnectionString returns the connection string for the sqlite database kept in stateDir.
func SQLiteConnectionString(stateDir string) store.DatabaseConnectionString {
	return store.DatabaseConnectionString(fmt.Sprintf("file:%s?cache=shared", filepath.Join(stateDir, databaseFileName)))
}

// ConfigFromFlags parses the server config from the process command line.
func ConfigFromFlags() (*ServerConfig, error) {
	return ConfigFromArgs(os.Args[1:])
}

// ConfigFromArgs parses the server config from args. Paths that are not set explicitly are
// derived from --state_directory.
func ConfigFromArgs(args []string) (*ServerConfig, error) {
	var (
		flags = flag.NewFlagSet("depchain-server", flag.ContinueOnError)

		stateDir                 string
		workDir                  string
		pipelinePaths            []string
		maxJobsPerFile           int
		maxCommandsPerJob        int
		blobStoreType            string
		localBlobStoreDir        string
		s3Config                 blob.S3BlobStoreConfig
		apiServerAddress         string
		apiServerCertificateFile string
		apiServerPrivateKeyFile  string
		allowedOrigins           []string
		databaseConnectionString string
		databaseDriverStr        string
		maxIdleConnections       int
		maxOpenConnections       int
		parallelJobs             int
		buildTimeout             time.Duration
		runTimeout               time.Duration
		runTimeoutPollInterval   time.Duration
		shell                    string
		logLevels                string
	)

	// State
	flags.StringVar(&stateDir, "state_directory",
		defaultStateDir, "The directory on the local host the server keeps its database, output area, job workspaces and run logs in.")

	// Pipeline
	flags.StringVar(&workDir, "work_directory",
		".", "The directory the pipeline is loaded from and that relative pipeline paths are resolved against.")
	flags.StringSliceVar(&pipelinePaths, "pipeline_path",
		nil, "A pipeline file, or a directory of pipeline files, to load. May be repeated. Defaults to the pipeline file in the work directory.")
	flags.IntVar(&maxJobsPerFile, "max_jobs_per_file",
		pipeline.DefaultMaxJobsPerFile, "The maximum number of jobs allowed in a single pipeline file.")
	flags.IntVar(&maxCommandsPerJob, "max_commands_per_job",
		pipeline.DefaultMaxCommandsPerJob, "The maximum number of commands allowed in any single job.")

	// Blob Storage
	flags.StringVar(&blobStoreType, "blob_store_type",
		blob.LocalBlobStoreType.String(), fmt.Sprintf("The type of blob store to keep the output area in. Options: %s", strings.Join(blob.BlobStoreTypes(), ", ")))
	flags.StringVar(&localBlobStoreDir, "blob_store_local_directory",
		"", "The path on the local host to store blob files to, if using the local blob store. Defaults to a directory in the state directory.")
	flags.StringVar(&s3Config.BucketName, "blob_store_aws_s3_bucket_name",
		"", "The name of the S3 bucket to store blobs to, if using the S3 blob store.")
	flags.StringVar(&s3Config.Region, "blob_store_aws_s3_region",
		"", "The region of the S3 bucket to store blobs to, if using the S3 blob store.")
	flags.StringVar(&s3Config.AccessKeyID, "blob_store_aws_s3_access_key_id",
		"", "The AWS Access Key ID to use to authenticate to the S3 bucket, if using the S3 blob store.")
	flags.StringVar(&s3Config.SecretAccessKey, "blob_store_aws_s3_secret_key",
		"", "The AWS Secret Key to use to authenticate to the S3 bucket, if using the S3 blob store.")
	flags.StringVar(&s3Config.Endpoint, "blob_store_aws_s3_endpoint",
		"", "Overrides the S3 endpoint, to use an S3 compatible store.")

	// API
	flags.StringVar(&apiServerAddress, "api_server_address",
		defaultAPIServerAddress, "The interface and port to bind the API server to.")
	flags.StringVar(&apiServerCertificateFile, "api_server_certificate_file",
		"", "The server certificate to serve HTTPS with. HTTP is served if not set.")
	flags.StringVar(&apiServerPrivateKeyFile, "api_server_private_key_file",
		"", "The private key of the server certificate.")
	flags.StringSliceVar(&allowedOrigins, "api_server_allowed_origins",
		nil, "Origins allowed to make cross-origin requests to the API. May be repeated.")

	// Database
	flags.StringVar(&databaseConnectionString, "database_connection_string",
		"", "The connection string for the database. Defaults to a sqlite database in the state directory.")
	flags.StringVar(&databaseDriverStr, "database_driver",
		string(store.Sqlite), "The Database Driver to use (i.e sqlite3|postgres)")
	flags.IntVar(&maxIdleConnections, "database_max_idle_connections",
		store.DefaultDatabaseMaxIdleConnections, "The maximum number of idle database connections to use")
	flags.IntVar(&maxOpenConnections, "database_max_open_connections",
		store.DefaultDatabaseMaxOpenConnections, "The maximum number of open database connections to use")

	// Execution
	flags.IntVar(&parallelJobs, "parallel_jobs",
		0, "The number of runs that may execute commands at the same time. Defaults to half the number of CPUs.")
	flags.DurationVar(&buildTimeout, "build_timeout",
		runner.DefaultBuildTimeout, "The maximum time a whole plan may take.")
	flags.DurationVar(&runTimeout, "run_timeout",
		queue.DefaultRunTimeout, "How long a run may stay unfinished before it is failed, e.g. after a crash.")
	flags.DurationVar(&runTimeoutPollInterval, "run_timeout_poll_interval",
		queue.NewDefaultTimeoutCheckerConfig().PollInterval, "How often unfinished runs are checked for timeouts.")
	flags.StringVar(&shell, "shell",
		"", "The shell to run job commands with. Defaults to the platform shell.")

	// Misc
	flags.StringVar(&logLevels, "log_levels",
		"", fmt.Sprintf("A comma separated list of name=level pairs where name is the name of the logger and level is one of: %s", logger.ListLogLevels()))

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if stateDir == "" {
		return nil, errors.New("--state_directory must be set")
	}
	stateDir, err := filepath.Abs(stateDir)
	if err != nil {
		return nil, fmt.Errorf("error resolving state directory: %w", err)
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("error resolving work directory: %w", err)
	}
	config := NewDefaultServerConfig(stateDir, workDir)

	// Pipeline
	config.PipelineConfig.Paths = pipelinePaths
	config.PipelineConfig.Limits.MaxJobsPerFile = maxJobsPerFile
	config.PipelineConfig.Limits.MaxCommandsPerJob = maxCommandsPerJob

	// Blob Storage
	config.BlobStoreConfig.BlobStoreType = blobStoreType
	if localBlobStoreDir != "" {
		config.BlobStoreConfig.LocalBlobStoreDir = localBlobStoreDir
	}
	config.BlobStoreConfig.S3BlobStoreConfig = s3Config

	// API
	config.APIServerConfig.Address = apiServerAddress
	config.APIServerConfig.AllowedOrigins = allowedOrigins
	if apiServerCertificateFile != "" || apiServerPrivateKeyFile != "" {
		if apiServerCertificateFile == "" || apiServerPrivateKeyFile == "" {
			return nil, errors.New("--api_server_certificate_file and --api_server_private_key_file must be set together")
		}
		config.APIServerConfig.TLSConfig = &server.TLSConfig{
			CertificateFile: apiServerCertificateFile,
			PrivateKeyFile:  apiServerPrivateKeyFile,
		}
	}

	// Database
	config.DatabaseConfig.Driver = store.DBDriver(databaseDriverStr)
	if databaseConnectionString != "" {
		config.DatabaseConfig.ConnectionString = store.DatabaseConnectionString(databaseConnectionString)
	} else if config.DatabaseConfig.Driver != store.Sqlite {
		return nil, fmt.Errorf("--database_connection_string must be set when using the %s driver", config.DatabaseConfig.Driver)
	}
	config.DatabaseConfig.MaxIdleConnections = maxIdleConnections
	config.DatabaseConfig.MaxOpenConnections = maxOpenConnections

	// Execution
	config.SchedulerConfig.ParallelJobs = parallelJobs
	config.OrchestratorConfig.BuildTimeout = buildTimeout
	config.TimeoutCheckerConfig.RunTimeout = runTimeout
	config.TimeoutCheckerConfig.PollInterval = runTimeoutPollInterval
	if shell != "" {
		config.ExecutorConfig.ShellOrNil = &shell
	}

	// Misc
	config.LogLevels = logger.LogLevelConfig(logLevels)

	return config, nil
}
