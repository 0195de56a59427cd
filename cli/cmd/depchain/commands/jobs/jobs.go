package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/server/services/pipeline"
)

func init() {
	commands.RootCmd.AddCommand(jobsCmd)
}

var jobsCmd = &cobra.Command{
	Use:           "jobs",
	Short:         "List the jobs in the pipeline, dependencies first",
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
			return utils.PrintJSON(p.Jobs())
		}

		table := utils.NewTable()
		fmt.Fprintln(table, "ID\tNAME\tDEPENDS ON\tFILE")
		for _, job := range p.Jobs() {
			var targets []string
			for _, link := range job.Dependencies {
				targets = append(targets, link.Target.String())
			}
			fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", job.ID, job.Name, strings.Join(targets, ","), job.SourceFile)
		}
		return table.Flush()
	},
}
