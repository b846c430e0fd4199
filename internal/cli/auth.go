package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/semmidev/backuppilot/internal/app"
)

func (c *cli) authCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Obtain credentials for remote destinations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "gdrive",
		Short: "Run the Google Drive consent flow and print a refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := c.loadConfig(cmd)
			if err != nil {
				return err
			}

			svc, err := app.NewGoogleOAuthService(log, cfg.GoogleOAuth.ClientSecretFile)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			if err := svc.StartAuthServer(ctx, cfg.GoogleOAuth.ListenAddr); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = svc.Shutdown(shutdownCtx)
			}()

			fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in a browser:\n\n  %s\n\n", svc.ConsentURL())

			select {
			case tok := <-svc.Tokens():
				fmt.Fprintf(cmd.OutOrStdout(), "refresh_token: %s\n", tok.RefreshToken)
				return nil
			case <-ctx.Done():
				return fmt.Errorf("authorization cancelled")
			}
		},
	})
	return cmd
}
