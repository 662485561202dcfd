package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/workspace"
)

var pairCmd = &cobra.Command{
	Use:   "pair NAME",
	Short: "Continuously sync a local workspace with an agent's, in both directions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		localPath, _ := cmd.Flags().GetString("local")
		conflict, _ := cmd.Flags().GetString("conflict")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		poll, _ := cmd.Flags().GetDuration("poll")

		remote, err := agentEndpoint(app, args[0])
		if err != nil {
			return err
		}
		local := workspace.Endpoint{Path: localPath, Shell: workspace.LocalRunner{}}
		eng := workspace.New(local, remote)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("pairing %s <-> %s (%s), conflict=%s. Ctrl-C to stop.\n", localPath, args[0], remote.Path, conflict)
		return eng.Pair(ctx, workspace.PairOptions{
			Conflict: workspace.PairConflict(conflict),
			Debounce: debounce,
			Poll:     poll,
		})
	},
}

func init() {
	pairCmd.Flags().String("local", ".", "Local workspace path")
	pairCmd.Flags().String("conflict", string(workspace.PairNewer), "Conflict policy: newer, source, target")
	pairCmd.Flags().Duration("debounce", 500*time.Millisecond, "Local change debounce window")
	pairCmd.Flags().Duration("poll", 2*time.Second, "Remote poll interval")
}
