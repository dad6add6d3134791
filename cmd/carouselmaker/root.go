package main

import (
	"context"
	"strings"
	"sync"

	"github.com/phrazzld/carouselmaker/internal/config"
	"github.com/phrazzld/carouselmaker/internal/platform/logger"
	"github.com/spf13/cobra"
)

// commandContext loads configuration once and builds the application lazily
// for whichever subcommand runs.
type commandContext struct {
	configFlag *string
	envFlag    *[]string

	appOnce sync.Once
	app     *application
	appErr  error
}

func (c *commandContext) ensureApp(ctx context.Context) (*application, error) {
	c.appOnce.Do(func() {
		opts := []config.Option{config.WithEnvFiles(*c.envFlag...)}
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			opts = append(opts, config.WithConfigFile(path))
		}
		cfg, err := config.Load(opts...)
		if err != nil {
			c.appErr = err
			return
		}
		log, err := logger.Setup(cfg.Server)
		if err != nil {
			c.appErr = err
			return
		}
		c.app = newApplication(ctx, cfg, log)
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func newRootCommand() (*cobra.Command, *commandContext) {
	var configFlag string
	envFlag := []string{".env"}
	cc := &commandContext{configFlag: &configFlag, envFlag: &envFlag}

	rootCmd := &cobra.Command{
		Use:           "carouselmaker",
		Short:         "Turns text into branded image carousels delivered over Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringSliceVar(&envFlag, "env-file", envFlag, "Dotenv files loaded before the environment")

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newWorkerCommand(cc))
	rootCmd.AddCommand(newMigrateCommand(cc))
	rootCmd.AddCommand(newCleanupCommand(cc))
	rootCmd.AddCommand(newStatsCommand(cc))

	return rootCmd, cc
}
