package exec

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/alessio/shellescape"

	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/runner/runtime"
)

// passThroughEnv are the variables of the runner's own environment that commands inherit.
// Nothing else is inherited, so runs don't depend on whoever happened to start the runner.
var passThroughEnv = []string{"PATH", "HOME", "TMPDIR", "SystemRoot"}

type Config struct {
	runtime.Config
	ShellOrNil *string
}

// Runtime executes commands directly on the host machine.
type Runtime struct {
	config Config
	logger.Log
}

func NewRuntime(config Config, logFactory logger.LogFactory) *Runtime {
	return &Runtime{
		config: config,
		Log:    logFactory("ExecRuntime"),
	}
}

// Exec writes the commands to a script in the staging dir and runs it with the shell, in the
// workspace dir.
func (r *Runtime) Exec(ctx context.Context, config runtime.ExecConfig) error {
	hostOS := runtime.GetHostOS()
	err := os.MkdirAll(r.config.StagingDir, 0755)
	if err != nil {
		return fmt.Errorf("error creating staging directory: %w", err)
	}
	scriptPath, err := runtime.WriteScript(hostOS, r.config.StagingDir, config.Name, config.Commands)
	if err != nil {
		return err
	}
	shell := runtime.ShellOrDefault(hostOS, r.config.ShellOrNil)

	var args []string
	if hostOS == runtime.OSWindows {
		// Windows cmd.exe requires the /C option to run commands, as well as some other recommended options.
		// NOTE that "/C" must be the last option, immediately before the actual command.
		args = []string{"/D", "/E:ON", "/V:OFF", "/S", "/C", scriptPath}
	} else {
		args = []string{scriptPath}
	}
	cmd := exec.CommandContext(ctx, shell, args...)
	cmd.Dir = r.config.WorkspaceDir
	cmd.Stdout = config.Stdout
	cmd.Stderr = config.Stderr
	cmd.Env = append([]string{}, config.Env...)
	for _, name := range passThroughEnv {
		if value, ok := os.LookupEnv(name); ok {
			cmd.Env = append(cmd.Env, name+"="+value)
		}
	}

	r.WithField("dir", cmd.Dir).Debugf("Executing: %s", shellescape.QuoteCommand(append([]string{shell}, args...)))
	err = cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("error running commands: %w", ctx.Err())
		}
		return fmt.Errorf("error running commands: %w", err)
	}
	return nil
}
