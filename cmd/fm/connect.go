package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/cuemby/fm/pkg/fleet/session"
	"github.com/cuemby/fm/pkg/fleet/types"
)

var connectCmd = &cobra.Command{
	Use:   "connect NAME",
	Short: "Attach to an agent's session",
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
		sessionName := agent.SessionName(app.Config.SessionPrefix)

		if host.Provider == types.ProviderLocal {
			c := exec.Command("tmux", "attach-session", "-t", sessionName)
			c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
			return c.Run()
		}

		// Remote providers only expose a synchronous exec primitive, not
		// an interactive TTY passthrough — render the last captured pane
		// and tell the operator how to attach by hand, per session.go's
		// documented capture-pane-before-attach contract.
		port, ok := app.Ports[host.Provider]
		if !ok {
			return fmt.Errorf("no provider wired for kind %q", host.Provider)
		}
		sess := session.New(port)
		pane, err := sess.CapturePane(context.Background(), host.ID, sessionName)
		if err != nil {
			return err
		}
		fmt.Println(pane)
		fmt.Printf("\n--- agent %s is on a %s host; fm cannot attach a TTY to a remote session directly ---\n", agent.Name, host.Provider)
		if host.SSH != nil {
			fmt.Printf("attach with: ssh -t %s@%s -p %d tmux attach -t %s\n", host.SSH.User, host.SSH.Address, host.SSH.Port, sessionName)
		}
		return nil
	},
}
