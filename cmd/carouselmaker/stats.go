package main

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/phrazzld/carouselmaker/internal/service"
	"github.com/spf13/cobra"
)

func newStatsCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show users, generations and tasks at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := cc.ensureApp(cmd.Context())
			if err != nil {
				return err
			}
			s, err := app.stores()
			if err != nil {
				return err
			}
			l, err := app.ledger()
			if err != nil {
				return err
			}

			stats, err := app.adminService(s, l).Stats(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printStats(out io.Writer, stats *service.Stats) {
	rows := [][]string{
		{"users", strconv.Itoa(stats.TotalUsers)},
		{"carousels delivered", strconv.Itoa(stats.TotalCarousels)},
	}
	fmt.Fprintln(out, renderTable("Totals", []string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintln(out, renderTable("Generations", []string{"Status", "Count"},
		countRows(stats.GenerationsByStatus), []columnAlignment{alignLeft, alignRight}))
	fmt.Fprintln(out, renderTable("Tasks", []string{"Status", "Count"},
		countRows(stats.TasksByStatus), []columnAlignment{alignLeft, alignRight}))

	fmt.Fprintf(out, "Generated at %s\n", stats.GeneratedAt.UTC().Format(time.RFC3339))
}

// countRows sorts a status histogram by status name.
func countRows[K ~string](counts map[K]int) [][]string {
	keys := slices.Sorted(maps.Keys(counts))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{string(k), strconv.Itoa(counts[k])})
	}
	if len(rows) == 0 {
		rows = append(rows, []string{"none", "0"})
	}
	return rows
}
