package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/semmidev/backuppilot/internal/app"
	"github.com/semmidev/backuppilot/internal/config"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/logger"
)

type cli struct {
	configPath string
	debug      bool

	cfg *config.Config
	log *logger.Logger
	app *app.App
}

// newRoot builds the pilot command tree.
func newRoot() (*cobra.Command, *cli) {
	c := &cli{}

	root := &cobra.Command{
		Use:           "pilot",
		Short:         "Scheduled database backups to local disk, S3, SFTP and Google Drive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "configs/config.yaml", "path to config file")
	root.PersistentFlags().BoolVar(&c.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		c.serveCommand(),
		c.backupCommand(),
		c.scheduleCommand(),
		c.monitorCommand(),
		c.destinationCommand(),
		c.pruneCommand(),
		c.authCommand(),
	)
	return root, c
}

// Execute runs the CLI and prints errors with their remediation.
func Execute() {
	root, c := newRoot()
	err := root.Execute()
	c.close()
	if err != nil {
		printError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if kind := domain.KindOf(err); kind != domain.KindUnknown {
		fmt.Fprintf(w, "Kind:  %s\n", kind)
	}
	if hint := domain.RemediationOf(err); hint != "" {
		fmt.Fprintf(w, "Hint:  %s\n", hint)
	}
}

func (c *cli) loadConfig(cmd *cobra.Command) (*config.Config, *logger.Logger, error) {
	if c.cfg != nil {
		return c.cfg, c.log, nil
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.App.LogLevel
	if c.debug {
		level = "debug"
	}
	log, err := logger.New(logger.Options{
		Level:   level,
		File:    cfg.App.LogFile,
		Console: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}

	c.cfg, c.log = cfg, log
	return cfg, log, nil
}

// open builds the application and syncs the configured inventory into the
// metadata store.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}

	cfg, log, err := c.loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	a, err := app.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialize app: %w", err)
	}
	if err := a.Seed(cmd.Context()); err != nil {
		a.Shutdown()
		return nil, err
	}

	c.app = a
	return a, nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Shutdown()
		c.app = nil
		c.log = nil
		return
	}
	if c.log != nil {
		c.log.Close()
		c.log = nil
	}
}
