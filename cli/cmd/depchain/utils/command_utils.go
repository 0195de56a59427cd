package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/cli/app"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/common/util"
	"github.com/buildbeaver/depchain/common/util/proc_lock"
	"github.com/buildbeaver/depchain/server/services/queue"
)

// Exit codes reported by commands that run a plan.
const (
	ExitCodeFailed     = 1
	ExitCodeNotStarted = 2
)

func HomeifyPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("error locating user home directory: %w", err)
		}
		target := "$HOME"
		if strings.HasPrefix(path, "~/") {
			target = "~/"
		}
		return filepath.Join(home, path[len(target):]), nil
	}
	return path, nil
}

// WorkDir returns the absolute path of the configured work dir.
func WorkDir() (string, error) {
	workDir, err := HomeifyPath(commands.Global.WorkDir)
	if err != nil {
		return "", err
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("error resolving work directory %q: %w", commands.Global.WorkDir, err)
	}
	return workDir, nil
}

// NewConfig returns the CLI config for the configured work dir. Command output is copied to
// output if it is not nil.
func NewConfig(output io.Writer) (*app.CLIConfig, error) {
	workDir, err := WorkDir()
	if err != nil {
		return nil, err
	}
	config := app.NewCLIConfig(workDir, commands.Global.PipelinePaths, commands.Global.ParallelJobs, output)
	config.LogLevels = logger.LogLevelConfig(commands.Global.LogLevels)
	return config, nil
}

// OpenApp creates the app over the state dir of config, creating the state dir if needed.
func OpenApp(ctx context.Context, config *app.CLIConfig) (*app.App, func(), error) {
	err := os.MkdirAll(config.StateDir, 0755)
	if err != nil {
		return nil, nil, fmt.Errorf("error making state directory %q: %w", config.StateDir, err)
	}
	a, cleanup, err := app.New(ctx, config)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error initializing app")
	}
	return a, cleanup, nil
}

// GetWorkDirLock takes the lock guarding the state dir of config. The caller should keep the file
// open for as long as it executes runs.
// Returns an error if another depchain process is running in the same work dir.
func GetWorkDirLock(config *app.CLIConfig) (*os.File, error) {
	lockFile := proc_lock.WorkDirLockFile(config.StateDir)
	file, err := proc_lock.CreateLockFile(lockFile)
	if err != nil {
		pid, pidErr := proc_lock.GetLockFilePid(lockFile)
		if pidErr == nil && pid != 0 {
			return nil, fmt.Errorf("error another depchain process (pid %d) is running in %s", pid, config.WorkDir)
		}
		return nil, fmt.Errorf("error another depchain process is running in %s: %w", config.WorkDir, err)
	}
	return file, nil
}

// FailOrphanedRuns fails the runs left unfinished by a depchain process that died. The caller must hold
// the work dir lock, so that no other process can be executing runs in the work dir.
func FailOrphanedRuns(ctx context.Context, timeoutChecker *queue.TimeoutChecker) error {
	n, err := timeoutChecker.FailUnfinishedRuns(ctx)
	if err != nil {
		return errors.Wrap(err, "error failing orphaned runs")
	}
	if n > 0 {
		cli.Stderr.Printf("Failed %d run(s) left unfinished by a previous invocation", n)
	}
	return nil
}

// ParsePlanOptions parses the --force and --param flags.
func ParsePlanOptions(force bool, params []string) (models.PlanOptions, error) {
	overrides, err := models.ParseParamOverrides(params)
	if err != nil {
		return models.PlanOptions{}, err
	}
	return models.PlanOptions{Force: force, Params: overrides}, nil
}

// PrintJSON writes v to stdout as indented JSON.
func PrintJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewTable returns a writer that aligns tab separated columns on stdout. Call Flush when done.
func NewTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// ExitForStatus converts the final status of the triggered job into the command's result.
// Jobs that never started because a dependency failed get a different exit code to jobs that failed.
func ExitForStatus(jobID models.JobID, status models.RunStatus) error {
	switch status {
	case models.RunStatusSucceeded:
		return nil
	case models.RunStatusNotStarted:
		return &cli.ExitError{Code: ExitCodeNotStarted, Message: fmt.Sprintf("%s did not start: a dependency did not succeed", jobID)}
	default:
		return &cli.ExitError{Code: ExitCodeFailed, Message: fmt.Sprintf("%s finished with status %s", jobID, status)}
	}
}

// maxErrorColumnLength is the longest error message shown in a table column.
const maxErrorColumnLength = 80

// FormatError returns the first line of a run's error for display in a table, or an empty string.
func FormatError(err *models.Error) string {
	if err == nil {
		return ""
	}
	return util.TruncateStringToMaxLength(util.FirstLine(err.Error()), maxErrorColumnLength)
}
