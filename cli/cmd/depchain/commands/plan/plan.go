package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/models"
)

func init() {
	planCmd.Flags().BoolVarP(&planCmdConfig.force, "force", "f", false, "Plan a rebuild of every job regardless of reuse policies")
	planCmd.Flags().StringArrayVarP(&planCmdConfig.params, "param", "p", nil, "Override a job param, as name=value. May be repeated")
	commands.RootCmd.AddCommand(planCmd)
}

var planCmdConfig = struct {
	force  bool
	params []string
}{}

var planCmd = &cobra.Command{
	Use:           "plan <job>",
	Short:         "Show which jobs would be built or reused to run a job, without running anything",
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		opts, err := utils.ParsePlanOptions(planCmdConfig.force, planCmdConfig.params)
		if err != nil {
			return err
		}
		config, err := utils.NewConfig(nil)
		if err != nil {
			return err
		}
		app, cleanup, err := utils.OpenApp(ctx, config)
		if err != nil {
			return err
		}
		defer cleanup()

		plan, err := app.QueueService.Plan(ctx, models.JobID(args[0]), opts)
		if err != nil {
			return err
		}
		if commands.Global.JSON {
			return utils.PrintJSON(plan)
		}
		return PrintPlan(plan)
	},
}

// PrintPlan writes a table of the plan's steps to stdout, in execution order.
func PrintPlan(plan *models.ExecutionPlan) error {
	table := utils.NewTable()
	fmt.Fprintln(table, "JOB\tACTION\tDEPENDS ON\tREASON")
	for _, step := range plan.Steps {
		var targets []string
		for _, link := range step.Links {
			targets = append(targets, link.Target.String())
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", step.JobID, step.Action, strings.Join(targets, ","), step.Reason)
	}
	return table.Flush()
}
