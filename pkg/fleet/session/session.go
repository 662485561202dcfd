// Package session implements the Session Multiplexer Adapter (C4): a thin
// wrapper over the `tmux` binary. There is no maintained Go tmux client in
// the reference corpus, so the adapter shells out the same way the
// teacher shells out to nsenter in pkg/runtime/containerd.go, and follows
// the session-per-agent, "new-session -d -s <name> <cmd>" construction the
// gascity pod entrypoint uses to keep an agent alive inside one
// detached pane.
package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/fm/pkg/fleet/provider"
)

// Adapter drives a tmux session through a Provider Port's Exec primitive,
// so the same adapter works whether the host is local, a container, a
// cloud sandbox, or reached over SSH.
type Adapter struct {
	port provider.Port
}

// New builds a session adapter bound to one host's provider backend.
func New(port provider.Port) *Adapter {
	return &Adapter{port: port}
}

// ErrNoSession is returned when an operation targets a session that tmux
// reports no knowledge of.
type ErrNoSession struct{ Name string }

func (e *ErrNoSession) Error() string { return fmt.Sprintf("no tmux session named %q", e.Name) }

// Start creates a detached tmux session running command, attached to the
// agent's work_dir. Idempotent: if the session already exists, Start
// returns nil without restarting the command (the orchestrator is
// responsible for deciding whether a restart is warranted).
func (a *Adapter) Start(ctx context.Context, hostID, sessionName, command, workDir string, env map[string]string) error {
	if exists, err := a.HasSession(ctx, hostID, sessionName); err != nil {
		return err
	} else if exists {
		return nil
	}

	argv := []string{"tmux", "new-session", "-d", "-s", sessionName}
	if workDir != "" {
		argv = append(argv, "-c", workDir)
	}
	argv = append(argv, command)

	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return fmt.Errorf("tmux new-session: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tmux new-session exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

// SendKeys injects text into a session's active pane, followed by Enter
// unless literal is set (used for control sequences like C-c).
func (a *Adapter) SendKeys(ctx context.Context, hostID, sessionName, text string, literal bool) error {
	argv := []string{"tmux", "send-keys", "-t", sessionName, text}
	if !literal {
		argv = append(argv, "Enter")
	}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return fmt.Errorf("tmux send-keys: %w", err)
	}
	if res.ExitCode != 0 {
		return &ErrNoSession{Name: sessionName}
	}
	return nil
}

// CapturePane returns the visible contents of a session's pane, used by
// `connect` to render a snapshot of a remote host's session.
func (a *Adapter) CapturePane(ctx context.Context, hostID, sessionName string) (string, error) {
	argv := []string{"tmux", "capture-pane", "-t", sessionName, "-p"}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return "", fmt.Errorf("tmux capture-pane: %w", err)
	}
	if res.ExitCode != 0 {
		return "", &ErrNoSession{Name: sessionName}
	}
	return string(res.Stdout), nil
}

// Rename retargets a session to a new name. It is idempotent: if the old
// name no longer exists but the new one already does, that is treated as
// success (the rename already completed on a prior, interrupted attempt).
func (a *Adapter) Rename(ctx context.Context, hostID, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	has, err := a.HasSession(ctx, hostID, oldName)
	if err != nil {
		return err
	}
	if !has {
		if already, err := a.HasSession(ctx, hostID, newName); err == nil && already {
			return nil
		}
		return &ErrNoSession{Name: oldName}
	}
	argv := []string{"tmux", "rename-session", "-t", oldName, newName}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return fmt.Errorf("tmux rename-session: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("tmux rename-session exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

// HasSession reports whether tmux knows of a session by that name.
func (a *Adapter) HasSession(ctx context.Context, hostID, sessionName string) (bool, error) {
	argv := []string{"tmux", "has-session", "-t", sessionName}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return false, fmt.Errorf("tmux has-session: %w", err)
	}
	return res.ExitCode == 0, nil
}

// Kill terminates a session outright, used by destroy_agent.
func (a *Adapter) Kill(ctx context.Context, hostID, sessionName string) error {
	argv := []string{"tmux", "kill-session", "-t", sessionName}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return fmt.Errorf("tmux kill-session: %w", err)
	}
	if res.ExitCode != 0 && !strings.Contains(string(res.Stderr), "can't find session") {
		return fmt.Errorf("tmux kill-session exited %d: %s", res.ExitCode, string(res.Stderr))
	}
	return nil
}

// ListSessions returns every tmux session name known on the host, used by
// the Fleet Enumerator (C8) as one of its three reconciliation sources.
func (a *Adapter) ListSessions(ctx context.Context, hostID string) ([]string, error) {
	argv := []string{"tmux", "list-sessions", "-F", "#{session_name}"}
	res, err := a.port.Exec(ctx, hostID, argv, "", "", provider.Timeouts{})
	if err != nil {
		return nil, fmt.Errorf("tmux list-sessions: %w", err)
	}
	if res.ExitCode != 0 {
		// "no server running" is not an error: just no sessions exist yet.
		return nil, nil
	}
	lines := strings.Split(strings.TrimSpace(string(res.Stdout)), "\n")
	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return out, nil
}
