package main

import (
	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/provision"
)

// pluginCmd lists the compile-time capability registries standing in for
// a dynamic plugin loader (REDESIGN FLAGS): registered agent types and
// the provider kinds actually wired into this invocation.
var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "List registered agent types and provider kinds",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}

		type agentTypeView struct {
			Name  string `json:"name"`
			Steps int    `json:"default_steps"`
		}
		var agentTypes []agentTypeView
		for _, t := range provision.ListAgentTypes() {
			agentTypes = append(agentTypes, agentTypeView{Name: t.Name, Steps: len(t.DefaultSteps)})
		}

		var providers []string
		for kind := range app.Ports {
			providers = append(providers, string(kind))
		}

		return renderJSON(struct {
			AgentTypes []agentTypeView `json:"agent_types"`
			Providers  []string        `json:"providers"`
		}{AgentTypes: agentTypes, Providers: providers})
	},
}
