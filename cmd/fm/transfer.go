package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/cuemby/fm/pkg/fleet/workspace"
	"github.com/cuemby/fm/pkg/metrics"
)

// hostRunner adapts a Provider Port's Exec into workspace.Runner, so the
// transfer engine can shell git/rsync out against a remote host exactly
// as it does against the local machine through workspace.LocalRunner.
type hostRunner struct {
	app    *App
	hostID string
}

func (r hostRunner) Run(ctx context.Context, argv []string, cwd string) ([]byte, []byte, int, error) {
	host, err := r.app.Store.GetHost(r.hostID)
	if err != nil {
		return nil, nil, 0, err
	}
	port, ok := r.app.Ports[host.Provider]
	if !ok {
		return nil, nil, 0, fmt.Errorf("no provider wired for kind %q", host.Provider)
	}
	res, err := port.Exec(ctx, r.hostID, argv, cwd, "", provider.Timeouts{})
	if err != nil {
		return nil, nil, 0, err
	}
	return res.Stdout, res.Stderr, res.ExitCode, nil
}

func agentEndpoint(app *App, agentID string) (workspace.Endpoint, error) {
	agent, err := resolveAgent(app, agentID)
	if err != nil {
		return workspace.Endpoint{}, err
	}
	host, err := app.Store.GetHost(agent.HostID)
	if err != nil {
		return workspace.Endpoint{}, err
	}
	var runner workspace.Runner
	if host.Provider == types.ProviderLocal {
		runner = workspace.LocalRunner{}
	} else {
		runner = hostRunner{app: app, hostID: host.ID}
	}
	return workspace.Endpoint{Path: agent.WorkDir, Shell: runner}, nil
}

var pushCmd = &cobra.Command{
	Use:   "push NAME",
	Short: "Sync local changes into an agent's workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		localPath, _ := cmd.Flags().GetString("local")
		mode, _ := cmd.Flags().GetString("mode")
		target, err := agentEndpoint(app, args[0])
		if err != nil {
			return err
		}
		source := workspace.Endpoint{Path: localPath, Shell: workspace.LocalRunner{}}
		eng := workspace.New(source, target)
		timer := metrics.NewTimer()
		err = eng.Sync(context.Background(), workspace.Mode(mode), workspace.Options{})
		timer.ObserveDurationVec(metrics.TransferDuration, "push")
		if err != nil {
			return err
		}
		fmt.Println("push complete")
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull NAME",
	Short: "Sync an agent's workspace changes back to the local machine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		localPath, _ := cmd.Flags().GetString("local")
		mode, _ := cmd.Flags().GetString("mode")
		source, err := agentEndpoint(app, args[0])
		if err != nil {
			return err
		}
		target := workspace.Endpoint{Path: localPath, Shell: workspace.LocalRunner{}}
		eng := workspace.New(source, target)
		timer := metrics.NewTimer()
		err = eng.Sync(context.Background(), workspace.Mode(mode), workspace.Options{})
		timer.ObserveDurationVec(metrics.TransferDuration, "pull")
		if err != nil {
			return err
		}
		fmt.Println("pull complete")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{pushCmd, pullCmd} {
		c.Flags().String("local", ".", "Local workspace path")
		c.Flags().String("mode", string(workspace.ModeRsync), "Sync mode: rsync, vcs-push, vcs-pull")
	}
}
