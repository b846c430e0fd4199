package cli

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func (c *cli) monitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Database reachability checks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Probe every configured database once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			results := a.Monitor().CheckOnce(cmd.Context())
			rows := make([]table.Row, 0, len(results))
			for _, r := range results {
				rows = append(rows, table.Row{mark(r.Reachable), r.TargetID, r.TargetName, r.Engine, r.Latency.Round(time.Millisecond), errText(r.Err)})
			}
			renderTable(cmd.OutOrStdout(), table.Row{"", "Database", "Name", "Engine", "Latency", "Error"}, rows)
			return nil
		},
	})
	return cmd
}

func (c *cli) destinationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "destination",
		Short: "Backup destination checks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "test <destination-id>",
		Short: "Check that a destination accepts backups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "destination")
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			report := a.Backup().DestinationHealth(cmd.Context(), id)
			if report.Name != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s) via %s", mark(report.Connected), report.Name, report.Kind, report.Method)
				if report.Detail != "" {
					fmt.Fprintf(cmd.OutOrStdout(), ": %s", report.Detail)
				}
				fmt.Fprintln(cmd.OutOrStdout())
			}
			return report.Err
		},
	})
	return cmd
}

func (c *cli) pruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune <schedule-id>",
		Short: "Delete artifacts older than the schedule's retention",
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

			report, err := a.Backup().Prune(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, name := range report.Deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d artifact(s) older than %s removed, %d failed\n",
				len(report.Deleted), humanize.Time(report.Cutoff), report.Failed)
			return nil
		},
	}
}
