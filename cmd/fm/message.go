package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/enumerator"
	"github.com/cuemby/fm/pkg/fleet/messaging"
	"github.com/cuemby/fm/pkg/fleet/session"
)

var messageCmd = &cobra.Command{
	Use:   "message TEXT",
	Short: "Send text into one or more agents' sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		names, _ := cmd.Flags().GetStringSlice("agent")
		filterExpr, _ := cmd.Flags().GetString("filter")
		noNewline, _ := cmd.Flags().GetBool("no-newline")
		onErrorFlag, _ := cmd.Flags().GetString("on-error")

		var agentIDs []string
		if filterExpr != "" {
			rows, err := app.Enum.List(context.Background())
			if err != nil {
				return err
			}
			f, err := enumerator.NewFilter(filterExpr)
			if err != nil {
				return err
			}
			rows, err = enumerator.Apply(rows, f)
			if err != nil {
				return err
			}
			for _, r := range rows {
				agentIDs = append(agentIDs, r.Agent.ID)
			}
		} else {
			agentIDs = names
		}
		if len(agentIDs) == 0 {
			return fmt.Errorf("message requires --agent or --filter to select at least one target")
		}

		var targets []messaging.Target
		for _, nameOrID := range agentIDs {
			agent, err := resolveAgent(app, nameOrID)
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
			targets = append(targets, messaging.Target{Agent: agent, Sess: session.New(port)})
		}

		results, err := messaging.Send(context.Background(), targets, app.Config.SessionPrefix, args[0], !noNewline, messaging.OnError(onErrorFlag))
		for _, r := range results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			fmt.Printf("%s: %s\n", r.AgentID, status)
		}
		return err
	},
}

func init() {
	messageCmd.Flags().StringSlice("agent", nil, "Agent name or id, repeatable")
	messageCmd.Flags().String("filter", "", "CEL-style filter selecting target agents")
	messageCmd.Flags().Bool("no-newline", false, "Do not append a trailing Enter")
	messageCmd.Flags().String("on-error", string(messaging.OnErrorContinue), "abort or continue past a failed target")
}
