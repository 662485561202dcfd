package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/provider"
)

var execCmd = &cobra.Command{
	Use:   "exec NAME -- COMMAND [ARGS...]",
	Short: "Run a command on an agent's host synchronously",
	Args:  cobra.MinimumNArgs(2),
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
		user, _ := cmd.Flags().GetString("user")
		cwd, _ := cmd.Flags().GetString("cwd")
		if cwd == "" {
			cwd = agent.WorkDir
		}

		res, err := port.Exec(context.Background(), host.ID, args[1:], cwd, user, provider.Timeouts{})
		if err != nil {
			return err
		}
		os.Stdout.Write(res.Stdout)
		os.Stderr.Write(res.Stderr)
		os.Exit(res.ExitCode)
		return nil
	},
}

func init() {
	execCmd.Flags().String("user", "", "User to run the command as")
	execCmd.Flags().String("cwd", "", "Working directory, defaults to the agent's work_dir")
}
