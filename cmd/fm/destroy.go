package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/metrics"
)

var destroyCmd = &cobra.Command{
	Use:   "destroy NAME",
	Short: "Destroy an agent, and its host if this was its last agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		agent, err := resolveAgent(app, args[0])
		if err != nil {
			return err
		}
		timer := metrics.NewTimer()
		err = app.Orch.DestroyAgent(context.Background(), agent.HostID, agent.ID, force)
		timer.ObserveDuration(metrics.AgentDestroyDuration)
		if err != nil {
			return err
		}
		fmt.Printf("destroyed agent %s\n", agent.Name)
		return nil
	},
}

func init() {
	destroyCmd.Flags().Bool("force", false, "Destroy a running agent without stopping it first")
}

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a stopped agent",
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
		timer := metrics.NewTimer()
		err = app.Orch.StartAgent(context.Background(), agent.HostID, agent.ID)
		timer.ObserveDuration(metrics.AgentStartDuration)
		if err != nil {
			return err
		}
		fmt.Printf("started agent %s\n", agent.Name)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running agent",
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
		timer := metrics.NewTimer()
		err = app.Orch.StopAgent(context.Background(), agent.HostID, agent.ID)
		timer.ObserveDuration(metrics.AgentStopDuration)
		if err != nil {
			return err
		}
		fmt.Printf("stopped agent %s\n", agent.Name)
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename NAME NEW_NAME",
	Short: "Rename an agent and its session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		agent, err := resolveAgent(app, args[0])
		if err != nil {
			return err
		}
		if err := app.Orch.RenameAgent(context.Background(), agent.HostID, agent.ID, args[1]); err != nil {
			return err
		}
		fmt.Printf("renamed agent %s to %s\n", args[0], args[1])
		return nil
	},
}
