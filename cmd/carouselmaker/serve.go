package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/carouselmaker/internal/api"
	"github.com/spf13/cobra"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Run the HTTP API used by the bot front-end, the payment gateway and operators. " +
			"With the memory queue backend the generation workers run in the same process.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := cc.ensureApp(ctx)
			if err != nil {
				return err
			}
			return app.serve(ctx)
		},
	}
}

func (app *application) serve(ctx context.Context) error {
	services, err := app.services()
	if err != nil {
		return err
	}
	checks, err := app.healthChecks()
	if err != nil {
		return err
	}
	if app.config.Task.QueueBackend == "memory" {
		if err := app.startRunner(ctx); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.RouterDeps{
		Users:          services.users,
		Carousels:      services.carousels,
		Payments:       services.payments,
		Admin:          services.admin,
		Checks:         checks,
		AdminKey:       app.config.Admin.APIKey,
		WebhookSecret:  app.config.Payments.WebhookSecret,
		Metrics:        app.metrics,
		MetricsHandler: app.metricsHandler(),
		Logger:         app.logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app.runHTTPServer(ctx, server)
}

// runHTTPServer serves until ctx is cancelled, then shuts down gracefully
// within the configured timeout.
func (app *application) runHTTPServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.config.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.logger.Info("server shutdown completed")
	return nil
}
