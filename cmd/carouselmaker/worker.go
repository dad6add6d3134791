package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

func newWorkerCommand(cc *commandContext) *cobra.Command {
	var metricsAddr string
	var noCleanup bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run generation workers and the storage cleanup job",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.ensureApp(ctx)
			if err != nil {
				return err
			}
			return app.work(ctx, metricsAddr, !noCleanup)
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Address serving /metrics; empty disables it")
	cmd.Flags().BoolVar(&noCleanup, "no-cleanup", false, "Do not run the periodic storage cleanup")
	return cmd
}

func (app *application) work(ctx context.Context, metricsAddr string, withCleanup bool) error {
	if err := app.startRunner(ctx); err != nil {
		return err
	}

	if withCleanup {
		sweeper, err := app.sweeper()
		if err != nil {
			return err
		}
		go sweeper.Run(ctx, app.config.Storage.CleanupInterval)
	}

	if metricsAddr == "" {
		<-ctx.Done()
		app.logger.Info("worker stopping")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", app.metricsHandler())
	return app.runHTTPServer(ctx, &http.Server{
		Addr:              metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	})
}
