package clean

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
)

func init() {
	cleanCmd.Flags().BoolVar(
		&cleanCmdConfig.all,
		"all",
		false,
		"Also remove the run history and published artifacts, so that the next run rebuilds everything")
	cleanCmd.Flags().BoolVar(
		&cleanCmdConfig.skipConfirmation,
		"skip-confirmation",
		false,
		"Skip interactive confirmation and automatically answer Yes to confirmation questions")
	commands.RootCmd.AddCommand(cleanCmd)
}

var cleanCmdConfig = struct {
	all              bool
	skipConfirmation bool
}{}

var cleanCmd = &cobra.Command{
	Use:           "clean",
	Short:         "Remove the workspaces, logs and staging files left by previous runs",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.NewConfig(nil)
		if err != nil {
			return err
		}
		lockFile, err := utils.GetWorkDirLock(config)
		if err != nil {
			return err
		}
		defer lockFile.Close()

		dirs := []string{
			config.OrchestratorConfig.WorkspacesDir,
			config.ExecutorConfig.LogDir,
			config.ExecutorConfig.StagingDir,
		}
		if cleanCmdConfig.all {
			if !cli.AskForConfirmation("This will remove ALL run history and artifacts for this work dir. Are you sure?", cleanCmdConfig.skipConfirmation) {
				cli.Stdout.Printf("Clean cancelled.")
				return nil
			}
			dirs = append(dirs, config.BlobStoreConfig.LocalBlobStoreDir)
			matches, err := filepath.Glob(config.DatabaseFilePath + "*")
			if err != nil {
				return err
			}
			dirs = append(dirs, matches...)
		}

		var result *multierror.Error
		for _, dir := range dirs {
			err := os.RemoveAll(dir)
			if err != nil {
				result = multierror.Append(result, fmt.Errorf("error removing %s: %w", dir, err))
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			return err
		}
		if !commands.Global.JSON {
			fmt.Printf("Cleaned %s\n", config.StateDir)
		}
		return nil
	},
}
