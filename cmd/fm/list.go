package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/enumerator"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List agents across the fleet",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		filterExpr, _ := cmd.Flags().GetString("filter")
		shorthand, _ := cmd.Flags().GetString("state")
		sortKeys, _ := cmd.Flags().GetStringSlice("sort")
		limit, _ := cmd.Flags().GetInt("limit")
		watch, _ := cmd.Flags().GetDuration("watch")

		var filter *enumerator.Filter
		expr := filterExpr
		if shorthand != "" {
			expr = enumerator.Shorthand(shorthand)
		}
		if expr != "" {
			filter, err = enumerator.NewFilter(expr)
			if err != nil {
				return err
			}
		}

		keys := make([]enumerator.SortKey, 0, len(sortKeys))
		for _, k := range sortKeys {
			keys = append(keys, enumerator.SortKey(k))
		}

		render := func() error {
			rows, err := app.Enum.List(context.Background())
			if err != nil {
				return err
			}
			rows, err = enumerator.Apply(rows, filter)
			if err != nil {
				return err
			}
			enumerator.SortRows(rows, keys)
			if limit > 0 && len(rows) > limit {
				rows = rows[:limit]
			}
			return renderRows(cmd, rows)
		}

		if watch <= 0 {
			return render()
		}
		// Watch mode: periodic refresh with a minimum interval, per §4.8.
		const minInterval = 1 * time.Second
		if watch < minInterval {
			watch = minInterval
		}
		ticker := time.NewTicker(watch)
		defer ticker.Stop()
		for {
			fmt.Print("\033[H\033[2J")
			if err := render(); err != nil {
				return err
			}
			<-ticker.C
		}
	},
}

func init() {
	listCmd.Flags().String("filter", "", "CEL-style filter expression")
	listCmd.Flags().String("state", "", "Shorthand filter: running, stopped, local, remote, provider=X")
	listCmd.Flags().StringSlice("sort", []string{"name"}, "Sort keys, in tie-break order: name, state, host, created_at")
	listCmd.Flags().Int("limit", 0, "Maximum rows to print, 0 for unlimited")
	listCmd.Flags().Duration("watch", 0, "Refresh interval for continuous watch mode, 0 disables")
}
