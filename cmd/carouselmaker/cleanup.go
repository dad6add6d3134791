package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/phrazzld/carouselmaker/internal/cleanup"
	"github.com/spf13/cobra"
)

func newCleanupCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete stored slides older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cc.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			sweeper, err := app.sweeper()
			if err != nil {
				return err
			}

			report, err := sweeper.Sweep(cmd.Context())
			if errors.Is(err, cleanup.ErrSkipped) {
				fmt.Fprintln(cmd.OutOrStdout(), "Another process is cleaning up; nothing done.")
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable("Cleanup", []string{"Metric", "Value"}, reportRows(report),
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func reportRows(r cleanup.Report) [][]string {
	return [][]string{
		{"objects scanned", strconv.Itoa(r.Scanned)},
		{"objects deleted", strconv.Itoa(r.Deleted)},
		{"delete failures", strconv.Itoa(r.Failed)},
		{"slide keys cleared", strconv.Itoa(r.KeysCleared)},
		{"bytes removed", strconv.FormatInt(r.BytesRemoved, 10)},
	}
}
