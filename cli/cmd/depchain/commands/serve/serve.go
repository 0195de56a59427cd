package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	server_app "github.com/buildbeaver/depchain/server/app"
)

const shutdownTimeout = 5 * time.Minute

func init() {
	serveCmd.Flags().StringVar(
		&serveCmdConfig.address,
		"address",
		"127.0.0.1:3000",
		"The address to serve the API on")
	commands.RootCmd.AddCommand(serveCmd)
}

var serveCmdConfig = struct {
	address string
}{}

var serveCmd = &cobra.Command{
	Use:           "serve",
	Short:         "Serve the REST API over the pipeline and run history of the work dir",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.NewConfig(nil)
		if err != nil {
			return err
		}
		err = os.MkdirAll(config.StateDir, 0755)
		if err != nil {
			return err
		}
		lockFile, err := utils.GetWorkDirLock(config)
		if err != nil {
			return err
		}
		defer lockFile.Close()

		server, cleanup, err := server_app.New(context.Background(), config.ServerConfig(serveCmdConfig.address))
		if err != nil {
			return err
		}
		defer cleanup()

		err = utils.FailOrphanedRuns(context.Background(), server.TimeoutChecker)
		if err != nil {
			return err
		}
		err = server.Start(context.Background())
		if err != nil {
			return err
		}
		cli.Stdout.Printf("Serving %s on http://%s", config.WorkDir, serveCmdConfig.address)

		done := make(chan os.Signal, 1)
		signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		<-done

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(ctx)
	},
}
