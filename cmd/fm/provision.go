package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/provision"
)

var provisionCmd = &cobra.Command{
	Use:   "provision NAME",
	Short: "Re-run an agent type's provisioning steps against an existing agent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		agentType, _ := cmd.Flags().GetString("type")
		user, _ := cmd.Flags().GetString("user")
		runCmds, _ := cmd.Flags().GetStringSlice("run")

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
		if agentType == "" {
			agentType = agent.Type
		}

		var steps []provision.Step
		for _, c := range runCmds {
			steps = append(steps, provision.Step{Kind: provision.StepRunUser, Command: c})
		}

		pipeline := provision.New(port, host.ID, user, provider.Timeouts{})
		if err := pipeline.Run(context.Background(), agentType, steps, agent.Env); err != nil {
			return err
		}
		fmt.Printf("provisioned %s as %s\n", agent.Name, agentType)
		return nil
	},
}

func init() {
	provisionCmd.Flags().String("type", "", "Agent type to re-apply, defaults to the agent's own type")
	provisionCmd.Flags().String("user", "", "User to run steps as")
	provisionCmd.Flags().StringSlice("run", nil, "Extra run_user step, repeatable")
}
