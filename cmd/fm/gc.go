package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/gc"
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Sweep work dirs, logs, build caches, machines, snapshots, and volumes for anything this fleet no longer references",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		cats, _ := cmd.Flags().GetStringSlice("category")
		include, _ := cmd.Flags().GetStringSlice("include")
		exclude, _ := cmd.Flags().GetStringSlice("exclude")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		onError, _ := cmd.Flags().GetString("on-error")

		opts := gc.Options{
			Include: include,
			Exclude: exclude,
			DryRun:  dryRun,
			OnError: gc.OnError(onError),
		}
		for _, c := range cats {
			opts.Categories = append(opts.Categories, gc.Category(c))
		}

		result, err := gcCollector(app).Run(context.Background(), opts)
		if result != nil {
			for _, item := range result.Items {
				verb := "removed"
				if dryRun {
					verb = "would remove"
				}
				fmt.Printf("%s %s %s/%s (%s)\n", verb, item.Category, item.HostID, item.Ref, item.Reason)
			}
			for _, e := range result.Errors {
				fmt.Printf("error: %v\n", e)
			}
		}
		return err
	},
}

func init() {
	gcCmd.Flags().StringSlice("category", nil, "Categories to sweep (default: all): work_dirs, logs, build_cache, machines, snapshots, volumes")
	gcCmd.Flags().StringSlice("include", nil, "Glob patterns an item's ref must match")
	gcCmd.Flags().StringSlice("exclude", nil, "Glob patterns to skip")
	gcCmd.Flags().Bool("dry-run", false, "Report what would be removed without removing it")
	gcCmd.Flags().String("on-error", "continue", "abort or continue past a failed deletion")
}
