package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/config"
	"github.com/cuemby/fm/pkg/fleet/orchestrator"
	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/cuemby/fm/pkg/fleet/workspace"
	"github.com/cuemby/fm/pkg/metrics"
)

var createCmd = &cobra.Command{
	Use:   "create NAME -- COMMAND [ARGS...]",
	Short: "Create a new agent",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		name := args[0]
		command := args[1:]
		if len(command) == 0 {
			command = []string{"bash"}
		}

		hostTarget, _ := cmd.Flags().GetString("host")
		newProvider, _ := cmd.Flags().GetString("provider")
		image, _ := cmd.Flags().GetString("image")
		agentType, _ := cmd.Flags().GetString("type")
		project, _ := cmd.Flags().GetString("project")
		idleMode, _ := cmd.Flags().GetString("idle-mode")
		idleTimeout, _ := cmd.Flags().GetInt("idle-timeout")
		workspaceSrc, _ := cmd.Flags().GetString("workspace")
		workspaceModeFlag, _ := cmd.Flags().GetString("workspace-mode")
		newBranch, _ := cmd.Flags().GetString("new-branch")
		labels, _ := cmd.Flags().GetStringToString("label")
		env, _ := cmd.Flags().GetStringToString("env")

		req := orchestrator.CreateAgentRequest{
			Name: name,
			HostTarget: orchestrator.HostTarget{
				TargetHost:      hostTarget,
				NewHostProvider: types.ProviderKind(newProvider),
				Image:           image,
				Resources:       limitsToResources(app.Config.Limits),
			},
			AgentType:        agentType,
			Command:          command,
			Project:          project,
			Labels:           labels,
			Env:              env,
			IdleMode:         types.IdleMode(idleMode),
			IdleTimeout:      time.Duration(idleTimeout) * time.Second,
			WorkspaceMode:    workspace.Mode(workspaceModeFlag),
			WorkspaceOptions: workspace.Options{NewBranch: newBranch},
		}
		if workspaceSrc != "" {
			req.WorkspaceSource = workspace.Endpoint{Path: workspaceSrc}
		}
		if req.WorkspaceMode == "" {
			req.WorkspaceMode = workspace.ModeInPlace
		}

		timer := metrics.NewTimer()
		agent, err := app.Orch.CreateAgent(context.Background(), req)
		timer.ObserveDuration(metrics.AgentCreateDuration)
		if err != nil {
			return err
		}
		fmt.Printf("created agent %s (%s) on host %s\n", agent.Name, agent.ID, agent.HostID)
		return nil
	},
}

func init() {
	createCmd.Flags().String("host", "", "Existing host name or id to run on")
	createCmd.Flags().String("provider", "", "Provider kind for a new host: container, cloud-sandbox, secure-shell")
	createCmd.Flags().String("image", "", "Image/base reference for a new host")
	createCmd.Flags().String("type", "shell", "Agent type (claude-code, codex, shell)")
	createCmd.Flags().String("project", "", "Project label")
	createCmd.Flags().String("idle-mode", string(types.IdleModeDisabled), "Idle detection mode")
	createCmd.Flags().Int("idle-timeout", 0, "Idle timeout in seconds")
	createCmd.Flags().String("workspace", "", "Source workspace path")
	createCmd.Flags().String("workspace-mode", "", "Workspace materialization mode: in-place, copy, clone, worktree")
	createCmd.Flags().String("new-branch", "", "New branch name for worktree mode")
	createCmd.Flags().StringToString("label", nil, "Label key=value, repeatable")
	createCmd.Flags().StringToString("env", nil, "Environment key=value, repeatable")
}

func limitsToResources(l config.Limits) types.Resources {
	return types.Resources{CPUCores: l.MaxCPUCores, MemoryBytes: l.MaxMemoryBytes, DiskBytes: l.MaxDiskBytes}
}
