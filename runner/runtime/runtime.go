package runtime

import (
	"context"
	"io"
)

// Config is the base runtime configuration.
type Config struct {
	// StagingDir is a directory on the local filesystem where run related files (such as the
	// generated command scripts) are written by the runner.
	StagingDir string
	// WorkspaceDir is the directory the commands execute in.
	WorkspaceDir string
}

// ExecConfig describes commands that will execute inside a runtime.
type ExecConfig struct {
	// Name is a human-readable name that uniquely identifies the commands.
	Name string
	// Commands are the one or more shell commands to execute, in order.
	Commands []string
	// Env is the environment in the form name=value to expose to the commands.
	Env []string
	// Stdout is optional. If supplied the command(s) stdout will be written to it.
	Stdout io.Writer
	// Stderr is optional. If supplied the command(s) stderr will be written to it.
	Stderr io.Writer
}

// Runtime is an execution environment for the commands of a run.
type Runtime interface {
	// Exec executes commands inside the runtime, returning an error if any of them fails.
	Exec(ctx context.Context, config ExecConfig) error
}
