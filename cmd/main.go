package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/dqcheck/pkg/config"
	"github.com/xhad/dqcheck/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
		}
		stop()
		os.Exit(1)
	}
}

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	once   sync.Once
	config *config.Config
	logger *slog.Logger
	err    error
}

// ensureConfig loads and validates the configuration once and installs the
// configured logger as the slog default.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg, err := config.LoadConfig(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if *c.logLevelFlag != "" {
			cfg.Logging.Level = *c.logLevelFlag
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = "  - " + e.Error()
			}
			c.err = fmt.Errorf("invalid configuration:\n%s", strings.Join(msgs, "\n"))
			return
		}

		logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Dir)
		if err != nil {
			c.err = err
			return
		}
		slog.SetDefault(logger)
		c.config, c.logger = cfg, logger
	})
	return c.config, c.err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func newRootCommand() *cobra.Command {
	var configFlag, logLevelFlag string
	ctx := &commandContext{configFlag: &configFlag, logLevelFlag: &logLevelFlag}

	rootCmd := &cobra.Command{
		Use:           "dqcheck",
		Short:         "Evaluate course documents against a design quality checklist",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path (yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn or error")

	rootCmd.AddCommand(newEvaluateCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newChecklistCommand())

	return rootCmd
}
