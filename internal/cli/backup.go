package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/usecase"
)

func (c *cli) backupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Run and inspect backup jobs",
	}
	cmd.AddCommand(c.backupRunCommand(), c.backupListCommand())
	return cmd
}

func (c *cli) backupRunCommand() *cobra.Command {
	var databaseID, destinationID uint

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Back up one database now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseID == 0 {
				return fmt.Errorf("--database is required")
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			req := usecase.BackupRequest{TargetID: databaseID}
			if destinationID != 0 {
				req.DestinationID = &destinationID
			}

			res := a.Backup().RunBackup(context.WithoutCancel(cmd.Context()), req)
			if res.JobID != 0 {
				renderResults(cmd.OutOrStdout(), []usecase.JobResult{res})
			}
			return res.Err
		},
	}
	cmd.Flags().UintVar(&databaseID, "database", 0, "database id")
	cmd.Flags().UintVar(&destinationID, "destination", 0, "override the bound destination")
	return cmd
}

func (c *cli) backupListCommand() *cobra.Command {
	var (
		databaseID    uint
		destinationID uint
		status        string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent backup jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}

			filter := domain.JobFilter{Status: domain.JobStatus(status), Limit: limit}
			if databaseID != 0 {
				filter.DatabaseID = &databaseID
			}
			if destinationID != 0 {
				filter.DestinationID = &destinationID
			}

			jobs, err := a.Backup().ListJobs(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no backup jobs yet")
				return nil
			}
			renderJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	cmd.Flags().UintVar(&databaseID, "database", 0, "filter by database id")
	cmd.Flags().UintVar(&destinationID, "destination", 0, "filter by destination id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (RUNNING, SUCCESS, FAILED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of jobs to show")
	return cmd
}
