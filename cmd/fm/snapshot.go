package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/types"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot NAME",
	Short: "Capture a restorable filesystem snapshot of an agent's host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		agent, err := resolveAgent(app, args[0])
		if err != nil {
			return err
		}
		host, err := app.Store.GetHost(agent.HostID)
		if err != nil {
			return err
		}
		port, ok := app.Ports[host.Provider]
		if !ok {
			return fmt.Errorf("no provider wired for kind %q", host.Provider)
		}
		ref, err := port.Snapshot(context.Background(), host.ID)
		if err != nil {
			return err
		}
		host.Snapshots = append([]types.Snapshot{{Ref: ref, CreatedAt: time.Now()}}, host.Snapshots...)
		host.ActiveSnapshot = ref
		if err := app.Store.PutHost(host); err != nil {
			return err
		}
		fmt.Printf("snapshot %s taken for %s\n", ref, host.Name)
		return nil
	},
}
