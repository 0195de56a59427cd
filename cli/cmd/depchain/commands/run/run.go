package run

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/local_backend"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/services"
)

func init() {
	runCmd.Flags().BoolVarP(&runCmdConfig.force, "force", "f", false, "Rebuild every job in the plan regardless of reuse policies")
	runCmd.Flags().StringArrayVarP(&runCmdConfig.params, "param", "p", nil, "Override a job param, as name=value. May be repeated")
	commands.RootCmd.AddCommand(runCmd)
}

var runCmdConfig = struct {
	force  bool
	params []string
}{}

// runSummary is the JSON output of the run command.
type runSummary struct {
	Plan *models.ExecutionPlan `json:"plan"`
	// Runs holds the run satisfying each step, built or reused, in plan order.
	Runs   []*models.Run    `json:"runs"`
	Status models.RunStatus `json:"status"`
}

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a job, first running or reusing the jobs it depends on",
	Long: `Run a job, first running or reusing the jobs it depends on.

Exits with status 0 if the job succeeded, 1 if it failed and 2 if it did not start
because one of its dependencies did not succeed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		root := models.JobID(args[0])
		opts, err := utils.ParsePlanOptions(runCmdConfig.force, runCmdConfig.params)
		if err != nil {
			return err
		}

		var output io.Writer
		if commands.Global.Verbose && !commands.Global.JSON {
			output = os.Stdout
		}
		config, err := utils.NewConfig(output)
		if err != nil {
			return err
		}

		app, cleanup, err := utils.OpenApp(ctx, config)
		if err != nil {
			return err
		}
		defer cleanup()

		lockFile, err := utils.GetWorkDirLock(config)
		if err != nil {
			return err
		}
		defer lockFile.Close()

		pipeline, err := app.PipelineService.Load(ctx)
		if err != nil {
			return err
		}

		err = utils.FailOrphanedRuns(ctx, app.TimeoutChecker)
		if err != nil {
			return err
		}
		app.TimeoutChecker.Start()
		defer app.TimeoutChecker.Stop()

		var reporter *local_backend.ProgressReporter
		if !commands.Global.JSON {
			reporter = local_backend.NewProgressReporter(pipeline, commands.Global.Verbose)
			reporter.Start(app.EventService)
			defer reporter.Stop()
		}

		app.Scheduler.Start()
		plan, err := app.QueueService.Enqueue(ctx, root, opts)
		if err != nil {
			app.Scheduler.Stop()
			return err
		}
		if reporter != nil {
			reporter.ShowPlan(plan)
		}
		app.Scheduler.StopWhenQuiet()
		if reporter != nil {
			reporter.Stop()
		}

		summary, err := summarize(ctx, app.RunService, plan)
		if err != nil {
			return err
		}
		if commands.Global.JSON {
			err = utils.PrintJSON(summary)
			if err != nil {
				return err
			}
		} else {
			printSummary(summary)
		}
		return utils.ExitForStatus(root, summary.Status)
	},
}

// summarize collects the final state of the run satisfying each step of plan.
func summarize(ctx context.Context, runService services.RunService, plan *models.ExecutionPlan) (*runSummary, error) {
	built, err := runService.ListByPlan(ctx, nil, plan.ID)
	if err != nil {
		return nil, errors.Wrap(err, "error listing runs of plan")
	}
	byJob := make(map[models.JobID]*models.Run, len(built))
	for _, run := range built {
		byJob[run.JobID] = run
	}
	summary := &runSummary{Plan: plan, Status: models.RunStatusFailed}
	for _, step := range plan.Steps {
		run := byJob[step.JobID]
		if !step.IsBuild() {
			run = step.ReusedRun
		}
		if run == nil {
			continue
		}
		summary.Runs = append(summary.Runs, run)
		if step.JobID == plan.Root {
			summary.Status = run.Status
		}
	}
	return summary, nil
}

func printSummary(summary *runSummary) {
	steps := make(map[models.JobID]*models.PlanStep, len(summary.Plan.Steps))
	for _, step := range summary.Plan.Steps {
		steps[step.JobID] = step
	}
	fmt.Println()
	table := utils.NewTable()
	fmt.Fprintln(table, "JOB\tRESULT\tRUN\tERROR")
	for _, run := range summary.Runs {
		result := run.Status.String()
		if !steps[run.JobID].IsBuild() {
			result = "reused"
		} else if run.Status == models.RunStatusNotStarted {
			result = "not started"
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", run.JobID, result, run.ID, utils.FormatError(run.Error))
	}
	table.Flush()
}
