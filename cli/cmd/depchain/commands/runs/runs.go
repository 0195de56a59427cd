package runs

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/models"
)

func init() {
	runsCmd.Flags().IntVarP(&runsCmdConfig.limit, "limit", "n", 20, "The maximum number of runs to show")
	runsCmd.Flags().IntVar(&runsCmdConfig.offset, "offset", 0, "The number of newer runs to skip")
	commands.RootCmd.AddCommand(runsCmd)
}

var runsCmdConfig = struct {
	limit  int
	offset int
}{}

var runsCmd = &cobra.Command{
	Use:           "runs <job>",
	Short:         "List the run history of a job, newest first",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		config, err := utils.NewConfig(nil)
		if err != nil {
			return err
		}
		app, cleanup, err := utils.OpenApp(ctx, config)
		if err != nil {
			return err
		}
		defer cleanup()

		jobID := models.JobID(args[0])
		runs, hasMore, err := app.RunService.ListByJob(ctx, nil, jobID, models.NewPagination(runsCmdConfig.limit, runsCmdConfig.offset))
		if err != nil {
			return err
		}
		if commands.Global.JSON {
			return utils.PrintJSON(struct {
				Runs    []*models.Run `json:"runs"`
				HasMore bool          `json:"has_more"`
			}{Runs: runs, HasMore: hasMore})
		}
		if len(runs) == 0 {
			fmt.Printf("%s has no runs\n", jobID)
			return nil
		}
		PrintRuns(runs)
		if hasMore {
			fmt.Printf("(more runs available; use --offset %d)\n", runsCmdConfig.offset+len(runs))
		}
		return nil
	},
}

// PrintRuns writes a table of runs to stdout.
func PrintRuns(runs []*models.Run) {
	table := utils.NewTable()
	fmt.Fprintln(table, "RUN\tJOB\tSTATUS\tCREATED\tPLAN\tERROR")
	for _, run := range runs {
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.JobID, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"), run.PlanID, utils.FormatError(run.Error))
	}
	table.Flush()
}
