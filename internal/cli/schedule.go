package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/semmidev/backuppilot/internal/infrastructure/scheduler"
)

func parseID(arg, what string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, arg)
	}
	return uint(id), nil
}

func (c *cli) scheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Trigger, register and inspect schedules",
	}
	cmd.AddCommand(c.scheduleTriggerCommand(), c.scheduleReconcileCommand(), scheduleNextCommand())
	return cmd
}

func (c *cli) scheduleTriggerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <schedule-id>",
		Short: "Run every database of a schedule now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "schedule")
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			report, err := a.Backup().TriggerSchedule(cmd.Context(), id)
			if err != nil {
				return err
			}
			renderResults(cmd.OutOrStdout(), report.Results)
			fmt.Fprintln(cmd.OutOrStdout(), report.Message)
			return nil
		},
	}
}

func (c *cli) scheduleReconcileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Validate every enabled schedule and show its next run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			regErr := a.Scheduler().ReconcileAll(cmd.Context())
			renderStatus(cmd, a.Scheduler().Status())
			return regErr
		},
	}
}

func renderStatus(cmd *cobra.Command, st scheduler.Status) {
	rows := make([]table.Row, 0, len(st.Entries))
	for _, e := range st.Entries {
		rows = append(rows, table.Row{e.ScheduleID, e.Name, e.Cron, e.Next.Format(time.RFC3339), humanize.Time(e.Next)})
	}
	renderTable(cmd.OutOrStdout(), table.Row{"Schedule", "Name", "Cron", "Next run", ""}, rows)
	fmt.Fprintf(cmd.OutOrStdout(), "%d active schedule(s)\n", st.ActiveCount)
}

func scheduleNextCommand() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "next <cron>",
		Short: "Validate a cron expression and print its next runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at := time.Now().UTC()
			for i := 0; i < count; i++ {
				next, err := scheduler.NextRunEstimate(args[0], at)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
				at = next
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of runs to print")
	return cmd
}
