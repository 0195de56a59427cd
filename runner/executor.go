package runner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/util"
	"github.com/buildbeaver/depchain/runner/runtime"
	"github.com/buildbeaver/depchain/runner/runtime/exec"
)

// RunLogFileName returns the name of the file in the log dir that a run's command output is written to.
func RunLogFileName(runID fmt.Stringer) string {
	return util.EscapeFileName(runID.String()) + ".log"
}

type ExecutorConfig struct {
	// WorkDir is the directory the pipeline was loaded from. It is exposed to commands as DEPCHAIN_WORKDIR.
	WorkDir string
	// StagingDir is where the scripts generated for each run are written.
	StagingDir string
	// LogDir is where the output of each run is written, one file per run.
	LogDir string
	// ShellOrNil overrides the default shell of the platform.
	ShellOrNil *string
	// Output receives every line of command output, prefixed with the job id. Optional.
	Output io.Writer
}

// Executor runs the commands of a job in the run's workspace and is driven by the orchestrator.
type Executor struct {
	config     ExecutorConfig
	logFactory logger.LogFactory
	outputMu   sync.Mutex
	logger.Log
}

func NewExecutor(config ExecutorConfig, logFactory logger.LogFactory) *Executor {
	return &Executor{
		config:     config,
		logFactory: logFactory,
		Log:        logFactory("Executor"),
	}
}

// Execute templates the commands of the run and executes them in the run's workspace. The combined
// output is written to the run's log file, and to the configured output if any.
func (e *Executor) Execute(ctx *RunContext) (err error) {
	run := ctx.Run()
	log := e.WithFields(logger.Fields{"run_id": run.ID, "job_id": run.JobID})

	commands, err := templateCommands(ctx.Step().Commands, makeTemplateData(ctx))
	if err != nil {
		return err
	}
	if len(commands) == 0 {
		log.Info("Job has no commands")
		return nil
	}

	output, flush, err := e.openOutput(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := flush()
		if closeErr != nil {
			if err == nil {
				err = errors.Wrap(closeErr, "error closing run log")
			} else {
				log.Warnf("Will ignore error closing log of failed run: %s", closeErr)
			}
		}
	}()

	execRuntime := exec.NewRuntime(exec.Config{
		Config: runtime.Config{
			StagingDir:   filepath.Join(e.config.StagingDir, util.EscapeFileName(run.ID.String())),
			WorkspaceDir: ctx.Workspace(),
		},
		ShellOrNil: e.config.ShellOrNil,
	}, e.logFactory)

	log.Infof("Executing %d commands", len(commands))
	return execRuntime.Exec(ctx.Ctx(), runtime.ExecConfig{
		Name:     "run",
		Commands: commands,
		Env:      e.makeEnv(ctx),
		Stdout:   output,
		Stderr:   output,
	})
}

// LogRunError appends an error to the run's log file.
func (e *Executor) LogRunError(ctx *RunContext, runErr error) {
	if e.config.LogDir == "" {
		return
	}
	err := os.MkdirAll(e.config.LogDir, 0755)
	if err != nil {
		e.Warnf("Unable to create log directory: %s", err)
		return
	}
	path := filepath.Join(e.config.LogDir, RunLogFileName(ctx.Run().ID))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		e.Warnf("Unable to open run log: %s", err)
		return
	}
	defer file.Close()
	_, err = fmt.Fprintf(file, "error: %s\n", runErr)
	if err != nil {
		e.Warnf("Unable to write error to run log: %s", err)
	}
}

// CleanUp removes the staging files of the run. It is always called once the run has finished.
func (e *Executor) CleanUp(ctx *RunContext) error {
	dir := filepath.Join(e.config.StagingDir, util.EscapeFileName(ctx.Run().ID.String()))
	err := os.RemoveAll(dir)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "error removing staging directory")
	}
	return nil
}

// openOutput returns a writer for the output of the run's commands, and a function that flushes and
// closes it.
func (e *Executor) openOutput(ctx *RunContext) (io.Writer, func() error, error) {
	var (
		writers []io.WriteCloser
		prefix  *util.PrefixWriter
	)
	if e.config.LogDir != "" {
		err := os.MkdirAll(e.config.LogDir, 0755)
		if err != nil {
			return nil, nil, errors.Wrap(err, "error creating log directory")
		}
		file, err := os.Create(filepath.Join(e.config.LogDir, RunLogFileName(ctx.Run().ID)))
		if err != nil {
			return nil, nil, errors.Wrap(err, "error creating run log")
		}
		writers = append(writers, file)
	}
	if e.config.Output != nil {
		prefix = util.NewPrefixWriter(e.config.Output, &e.outputMu, fmt.Sprintf("[%s] ", ctx.Run().JobID))
		writers = append(writers, util.NopWriteCloser{Writer: prefix})
	}
	out := util.NewMultiWriteCloser(writers...)
	flush := func() error {
		var result *multierror.Error
		if prefix != nil {
			if err := prefix.Flush(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if err := out.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		return result.ErrorOrNil()
	}
	return out, flush, nil
}

// makeEnv returns the environment of the run's commands: every "env." param, followed by the
// standard DEPCHAIN_ variables.
func (e *Executor) makeEnv(ctx *RunContext) []string {
	run := ctx.Run()
	env := run.Params.EnvVars()
	env = append(env,
		"CI=true",
		"DEPCHAIN=true",
		"DEPCHAIN_WORKDIR="+e.config.WorkDir,
		"DEPCHAIN_WORKSPACE="+ctx.Workspace(),
		"DEPCHAIN_JOB_ID="+run.JobID.String(),
		"DEPCHAIN_RUN_ID="+run.ID.String(),
		"DEPCHAIN_PLAN_ID="+run.PlanID.String(),
	)
	return env
}
