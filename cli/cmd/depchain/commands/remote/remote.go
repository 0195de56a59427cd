package remote

import (
	"context"
	"fmt"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/buildbeaver/depchain/cli/cmd/depchain/cli"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/commands"
	"github.com/buildbeaver/depchain/cli/cmd/depchain/utils"
	"github.com/buildbeaver/depchain/common/logger"
	"github.com/buildbeaver/depchain/common/models"
	"github.com/buildbeaver/depchain/server/api/rest/client"
	"github.com/buildbeaver/depchain/server/api/rest/documents"
)

func init() {
	remoteTriggerCmd.Flags().BoolVarP(&remoteCmdConfig.force, "force", "f", false, "Rebuild every job in the plan regardless of reuse policies")
	remoteTriggerCmd.Flags().StringArrayVarP(&remoteCmdConfig.params, "param", "p", nil, "Override a job param, as name=value. May be repeated")
	remoteTriggerCmd.Flags().BoolVar(&remoteCmdConfig.noWait, "no-wait", false, "Print the plan and exit without waiting for it to finish")
	remoteRunsCmd.Flags().IntVarP(&remoteCmdConfig.limit, "limit", "n", 20, "The maximum number of runs to show")
	remoteRunsCmd.Flags().IntVar(&remoteCmdConfig.offset, "offset", 0, "The number of newer runs to skip")

	commands.RootCmd.AddCommand(remoteRootCmd)
	remoteRootCmd.AddCommand(remoteTriggerCmd)
	remoteRootCmd.AddCommand(remoteWatchCmd)
	remoteRootCmd.AddCommand(remoteRunsCmd)
}

var remoteCmdConfig = struct {
	force     bool
	params    []string
	noWait    bool
	limit     int
	offset    int
	apiClient *client.APIClient
}{}

var remoteRootCmd = &cobra.Command{
	Use:   "remote trigger|watch|runs",
	Short: "Trigger and watch jobs on a depchain server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logRegistry, err := logger.NewLogRegistry(logger.LogLevelConfig(commands.Global.LogLevels))
		if err != nil {
			return err
		}
		var logFactory logger.LogFactory = logger.NoOpLogFactory
		if commands.Global.Verbose {
			// Show retries and stream reconnects
			logRegistry.SetDefaultLevel(logrus.DebugLevel)
			logFactory = logger.MakeLogrusLogFactoryStdOutPlain(logRegistry)
		}
		remoteCmdConfig.apiClient, err = client.NewAPIClient([]string{commands.Global.Endpoint}, logFactory)
		return err
	},
}

var remoteTriggerCmd = &cobra.Command{
	Use:           "trigger <job>",
	Short:         "Trigger a job on the server and wait for its plan to finish",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		opts, err := utils.ParsePlanOptions(remoteCmdConfig.force, remoteCmdConfig.params)
		if err != nil {
			return err
		}
		root := models.JobID(args[0])
		plan, err := remoteCmdConfig.apiClient.TriggerJob(ctx, root, opts)
		if err != nil {
			return err
		}
		if commands.Global.JSON && remoteCmdConfig.noWait {
			return utils.PrintJSON(plan)
		}
		if !commands.Global.JSON {
			printPlan(plan)
		}
		if remoteCmdConfig.noWait {
			return nil
		}
		return watch(ctx, plan.ID, root)
	},
}

var remoteWatchCmd = &cobra.Command{
	Use:           "watch <plan-id>",
	Short:         "Wait for a plan on the server to finish, showing its events",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		planID, err := models.ParsePlanID(args[0])
		if err != nil {
			return err
		}
		return watch(context.Background(), planID, "")
	},
}

var remoteRunsCmd = &cobra.Command{
	Use:           "runs <job>",
	Short:         "List the run history of a job on the server, newest first",
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		runs, hasMore, err := remoteCmdConfig.apiClient.ListJobRuns(
			context.Background(),
			models.JobID(args[0]),
			models.NewPagination(remoteCmdConfig.limit, remoteCmdConfig.offset))
		if err != nil {
			return err
		}
		if commands.Global.JSON {
			return utils.PrintJSON(struct {
				Runs    []*documents.Run `json:"runs"`
				HasMore bool             `json:"has_more"`
			}{Runs: runs, HasMore: hasMore})
		}
		table := utils.NewTable()
		fmt.Fprintln(table, "RUN\tJOB\tSTATUS\tCREATED\tPLAN\tERROR")
		for _, run := range runs {
			fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
				run.ID, run.JobID, run.Status, run.CreatedAt.Format("2006-01-02 15:04:05"), run.PlanID, utils.FormatError(run.Error))
		}
		err = table.Flush()
		if err != nil {
			return err
		}
		if hasMore {
			fmt.Printf("(more runs available; use --offset %d)\n", remoteCmdConfig.offset+len(runs))
		}
		return nil
	},
}

// watch shows the events of a plan until it finishes, then converts the status of the plan's
// root job into the command's result.
func watch(ctx context.Context, planID models.PlanID, root models.JobID) error {
	var events []*documents.Event
	finished, err := remoteCmdConfig.apiClient.WatchPlan(ctx, planID, func(event *documents.Event) {
		if commands.Global.JSON {
			events = append(events, event)
			return
		}
		printEvent(event)
	})
	if err != nil {
		return err
	}
	if commands.Global.JSON {
		err = utils.PrintJSON(events)
		if err != nil {
			return err
		}
	}
	if root == "" {
		root = finished.JobID
	}
	return utils.ExitForStatus(root, finished.Status)
}

func printPlan(plan *documents.Plan) {
	cli.Stdout.Printf("Plan %s for %s:", plan.ID, plan.Root)
	table := utils.NewTable()
	for _, step := range plan.Steps {
		targets := make([]string, len(step.DependsOn))
		for i, target := range step.DependsOn {
			targets[i] = target.String()
		}
		fmt.Fprintf(table, "  %s\t%s\t%s\t%s\n", step.JobID, step.Action, strings.Join(targets, ","), step.Reason)
	}
	table.Flush()
}

func printEvent(event *documents.Event) {
	job := shellescape.StripUnsafe(event.JobID.String())
	switch event.Type {
	case models.PlanQueuedEvent:
		cli.Stdout.Printf("%s: plan queued", job)
	case models.PlanFinishedEvent:
		cli.Stdout.Printf("%s: plan finished (%s)", job, event.Status)
	default:
		if event.Error != nil {
			cli.Stdout.Printf("%s: %s (%s)", job, event.Status, event.Error.Error())
		} else {
			cli.Stdout.Printf("%s: %s", job, event.Status)
		}
	}
}
