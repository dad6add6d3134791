package main

import (
	"github.com/phrazzld/carouselmaker/internal/platform/postgres/migrations"
	"github.com/spf13/cobra"
)

func newMigrateCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|reset|status|version]",
		Short:     "Apply or inspect database migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: migrations.Commands,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) == 1 {
				command = args[0]
			}

			app, err := cc.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			db, err := app.db()
			if err != nil {
				return err
			}
			return migrations.Run(db, command, app.logger)
		},
	}
}
