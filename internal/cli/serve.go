package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/backuppilot/internal/app"
)

func (c *cli) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, database monitor and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := app.New(cfg, log)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			c.app = a

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return a.Run(ctx)
		},
	}
}
