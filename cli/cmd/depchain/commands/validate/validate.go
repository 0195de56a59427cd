package validate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/server/services/pipeline"
)

func init() {
	commands.RootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:           "validate",
	Short:         "Load the pipeline and report any errors without running anything",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := utils.NewConfig(nil)
		if err != nil {
			return err
		}
		pipelineService := pipeline.NewPipelineService(config.PipelineConfig, logger.NoOpLogFactory)
		p, err := pipelineService.Load(context.Background())
		if err != nil {
			return err
		}
		if commands.Global.JSON {
			return utils.PrintJSON(struct {
				Files []string `json:"files"`
				Jobs  int      `json:"jobs"`
			}{Files: p.Files, Jobs: p.Len()})
		}
		fmt.Printf("Pipeline is valid: %d job(s) in %d file(s)\n", p.Len(), len(p.Files))
		return nil
	},
}
