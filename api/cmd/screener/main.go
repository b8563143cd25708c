package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"photo-screener/api/internal/app"
	"photo-screener/api/internal/config"
)

// cli - общее состояние подкоманд.
type cli struct {
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:           "screener",
		Short:         "Photo screening against shared criteria",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(
		c.screenCmd(),
		c.criteriaCmd(),
		c.exportCmd(),
		c.screeningsCmd(),
	)
	return cmd
}

func (c *cli) setup() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	// в терминале читаемее консольный формат
	logger, err := config.NewLogger(cfg.LogLevel, "console")
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	return nil
}

func (c *cli) backend(ctx context.Context) (*app.Backend, error) {
	return app.OpenBackend(ctx, c.cfg, c.logger)
}
