// Package orchestrator implements the Lifecycle Orchestrator (C7): the
// agent and host state machines, create/stop/start/destroy/rename
// sequences, and the host-lock single serialization point. The
// structured-mutation idiom (validate -> construct -> apply -> update
// local truth) is grounded on the teacher's pkg/manager/manager.go
// Command{Op,Data}+Apply pattern, generalized from a raft-replicated
// journal to a single-process, host-lock guarded direct mutation — no
// consensus is needed because FM is not multi-user.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fm/pkg/fleet/events"
	"github.com/cuemby/fm/pkg/fleet/fleeterr"
	"github.com/cuemby/fm/pkg/fleet/ids"
	"github.com/cuemby/fm/pkg/fleet/provider"
	"github.com/cuemby/fm/pkg/fleet/provision"
	"github.com/cuemby/fm/pkg/fleet/session"
	"github.com/cuemby/fm/pkg/fleet/storage"
	"github.com/cuemby/fm/pkg/fleet/types"
	"github.com/cuemby/fm/pkg/fleet/workspace"
)

// Orchestrator drives state transitions for agents and hosts.
type Orchestrator struct {
	store       *storage.Store
	ports       map[types.ProviderKind]provider.Port
	broker      *events.Broker
	rootName    string
	sessionPfx  string
	hostLockTTL time.Duration
}

// Config carries the orchestrator's construction-time dependencies.
type Config struct {
	Store          *storage.Store
	Ports          map[types.ProviderKind]provider.Port
	Broker         *events.Broker
	RootName       string
	SessionPrefix  string
	HostLockTimeout time.Duration
}

func New(cfg Config) *Orchestrator {
	timeout := cfg.HostLockTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		store:       cfg.Store,
		ports:       cfg.Ports,
		broker:      cfg.Broker,
		rootName:    cfg.RootName,
		sessionPfx:  cfg.SessionPrefix,
		hostLockTTL: timeout,
	}
}

// CreateAgentRequest is the resolved, validated input to CreateAgent,
// already merged from defaults/user/project/local/env/CLI per the
// effective-config precedence step 1 of the create-agent sequence.
type CreateAgentRequest struct {
	Name        string
	HostTarget  HostTarget
	AgentType   string
	Command     []string
	WorkDir     string
	Project     string
	Labels      map[string]string
	Env         map[string]string
	IdleMode    types.IdleMode
	IdleTimeout time.Duration
	StartOnBoot bool

	WorkspaceMode    workspace.Mode
	WorkspaceOptions workspace.Options
	WorkspaceSource  workspace.Endpoint

	ProvisionSteps []provision.Step
}

// CreateAgent implements the create-agent sequence (§4.6): resolve/create
// host, acquire its lock, allocate an id, materialize the workspace, run
// provisioning, start the session, register with the idle supervisor's
// activity bookkeeping, and release the lock. Any failure after the
// descriptor is written destroys the partially created agent.
func (o *Orchestrator) CreateAgent(ctx context.Context, req CreateAgentRequest) (*types.Agent, error) {
	if req.WorkspaceMode == workspace.ModeWorktree && req.WorkspaceOptions.NewBranch == "" {
		return nil, fleeterr.InvalidRequestf("orchestrator.create_agent",
			fmt.Errorf("worktree mode requires a new branch name"))
	}

	host, err := o.ResolveHost(ctx, req.HostTarget)
	if err != nil {
		return nil, err
	}

	lock, err := o.store.AcquireHostLock(host.ID, "create_agent", o.hostLockTTL)
	if err != nil {
		return nil, err
	}
	defer lock.Release()

	agentID, err := ids.Generate()
	if err != nil {
		return nil, fleeterr.Internalf("orchestrator.create_agent", err)
	}
	name := req.Name
	if name == "" {
		name = agentID
	}

	workDir := o.store.AgentWorkDir(host.ID, agentID)
	agent := &types.Agent{
		ID:                 agentID,
		Name:               name,
		HostID:             host.ID,
		Type:               req.AgentType,
		Command:            req.Command,
		WorkDir:            workDir,
		Project:            req.Project,
		Labels:             req.Labels,
		IdleMode:           req.IdleMode,
		IdleTimeoutSeconds: int(req.IdleTimeout.Seconds()),
		StartOnBoot:        req.StartOnBoot,
		Env:                req.Env,
		State:              types.AgentCreating,
		CreatedAt:          o.now(),
	}
	if err := o.store.CreateAgent(agent); err != nil {
		return nil, err
	}

	if err := o.createAgentRemainder(ctx, host, agent, req); err != nil {
		agent.State = types.AgentDestroyed
		agent.Destroyed = true
		agent.DestroyedAt = o.now()
		o.store.PutAgent(agent)
		o.publish(events.AgentDestroyed, host.ID, agent.ID, err.Error())
		return nil, err
	}

	agent.State = types.AgentRunning
	agent.StartedAt = o.now()
	if err := o.store.PutAgent(agent); err != nil {
		return nil, err
	}
	o.store.TouchActivity(host.ID, types.ActivityCreate)
	o.publish(events.AgentRunning, host.ID, agent.ID, "")
	return agent, nil
}

func (o *Orchestrator) createAgentRemainder(ctx context.Context, host *types.Host, agent *types.Agent, req CreateAgentRequest) error {
	port, ok := o.ports[host.Provider]
	if !ok {
		return fleeterr.InvalidSpecf("orchestrator.create_agent", fmt.Errorf("no provider for kind %q", host.Provider))
	}

	target := req.WorkspaceSource
	target.Path = agent.WorkDir
	eng := workspace.New(req.WorkspaceSource, target)
	if err := eng.Materialize(ctx, req.WorkspaceMode, req.WorkspaceOptions); err != nil {
		return fmt.Errorf("materialize workspace: %w", err)
	}

	pipe := provision.New(port, host.ID, "", provider.Timeouts{})
	if err := pipe.Run(ctx, req.AgentType, req.ProvisionSteps, req.Env); err != nil {
		return fmt.Errorf("provisioning: %w", err)
	}

	sess := session.New(port)
	sessionName := agent.SessionName(o.sessionPfx)
	cmdLine := joinArgv(req.Command)
	if err := sess.Start(ctx, host.ID, sessionName, cmdLine, agent.WorkDir, req.Env); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	return nil
}

// StopAgent implements the stop sequence: kill the session, then snapshot
// the host if supported and this is its last running agent, then stop the
// host.
func (o *Orchestrator) StopAgent(ctx context.Context, hostID, agentID string) error {
	lock, err := o.store.AcquireHostLock(hostID, "stop_agent", o.hostLockTTL)
	if err != nil {
		return err
	}
	defer lock.Release()

	agent, err := o.store.GetAgent(hostID, agentID)
	if err != nil {
		return err
	}
	host, err := o.store.GetHost(hostID)
	if err != nil {
		return err
	}
	port, ok := o.ports[host.Provider]
	if !ok {
		return fleeterr.InvalidSpecf("orchestrator.stop_agent", fmt.Errorf("no provider for kind %q", host.Provider))
	}

	sess := session.New(port)
	if err := sess.Kill(ctx, hostID, agent.SessionName(o.sessionPfx)); err != nil {
		return fmt.Errorf("kill session: %w", err)
	}

	agent.State = types.AgentStopped
	if err := o.store.PutAgent(agent); err != nil {
		return err
	}
	o.publish(events.AgentStopped, hostID, agentID, "")

	if o.lastRunningAgent(hostID, agentID) {
		_, err := port.StopHost(ctx, hostID, true)
		var unsupported *provider.ErrUnsupported
		if errors.As(err, &unsupported) {
			_, err = port.StopHost(ctx, hostID, false)
		}
		if err == nil {
			host.State = types.HostStopped
			o.store.PutHost(host)
			o.publish(events.HostStopped, hostID, "", "")
		}
	}
	return nil
}

// StartAgent implements the start sequence: start the host if needed, then
// restart the session with the agent's recorded argv.
func (o *Orchestrator) StartAgent(ctx context.Context, hostID, agentID string) error {
	lock, err := o.store.AcquireHostLock(hostID, "start_agent", o.hostLockTTL)
	if err != nil {
		return err
	}
	defer lock.Release()

	agent, err := o.store.GetAgent(hostID, agentID)
	if err != nil {
		return err
	}
	host, err := o.store.GetHost(hostID)
	if err != nil {
		return err
	}
	port, ok := o.ports[host.Provider]
	if !ok {
		return fleeterr.InvalidSpecf("orchestrator.start_agent", fmt.Errorf("no provider for kind %q", host.Provider))
	}

	if host.State != types.HostRunning {
		snapshot := ""
		if len(host.Snapshots) > 0 {
			snapshot = host.Snapshots[0].Ref
		}
		if err := port.StartHost(ctx, hostID, snapshot); err != nil {
			return fmt.Errorf("start host: %w", err)
		}
		host.State = types.HostRunning
		o.store.PutHost(host)
		o.publish(events.HostRunning, hostID, "", "")
	}

	sess := session.New(port)
	if err := sess.Start(ctx, hostID, agent.SessionName(o.sessionPfx), joinArgv(agent.Command), agent.WorkDir, agent.Env); err != nil {
		return fmt.Errorf("restart session: %w", err)
	}

	agent.State = types.AgentRunning
	agent.StartedAt = o.now()
	if err := o.store.PutAgent(agent); err != nil {
		return err
	}
	o.publish(events.AgentRunning, hostID, agentID, "")
	return nil
}

// DestroyAgent implements the destroy sequence: stop if running (the
// caller must have confirmed --force for a running agent), delete the
// agent's state and work dir, and destroy the host too if this was its
// last agent.
func (o *Orchestrator) DestroyAgent(ctx context.Context, hostID, agentID string, force bool) error {
	lock, err := o.store.AcquireHostLock(hostID, "destroy_agent", o.hostLockTTL)
	if err != nil {
		return err
	}
	defer lock.Release()

	agent, err := o.store.GetAgent(hostID, agentID)
	if err != nil {
		return err
	}
	if agent.State == types.AgentRunning && !force {
		return fleeterr.InvalidRequestf("orchestrator.destroy_agent", fmt.Errorf("agent is running; pass force to destroy"))
	}

	agent.State = types.AgentDestroying
	o.store.PutAgent(agent)

	host, err := o.store.GetHost(hostID)
	if err == nil {
		if port, ok := o.ports[host.Provider]; ok {
			sess := session.New(port)
			sess.Kill(ctx, hostID, agent.SessionName(o.sessionPfx))
		}
	}

	if err := o.store.DeleteAgent(hostID, agentID); err != nil {
		return err
	}
	o.publish(events.AgentDestroyed, hostID, agentID, "")

	if host != nil && o.noRemainingAgents(hostID) {
		if port, ok := o.ports[host.Provider]; ok {
			port.DestroyHost(ctx, hostID, true)
		}
		host.Destroyed = true
		host.DestroyedAt = o.now()
		host.State = types.HostDestroyed
		o.store.PutHost(host)
		o.store.DeleteHost(hostID)
	}
	return nil
}

// RenameAgent implements the rename protocol (§4.6): it must survive
// partial failure, so it takes the host lock, writes the new descriptor
// atomically, then renames the multiplexer session. On resume, if the
// descriptor already has the new name but the session still has the old
// one, the caller re-invokes RenameAgent with the same newName; it is
// idempotent because session.Rename tolerates a session that has already
// been renamed.
func (o *Orchestrator) RenameAgent(ctx context.Context, hostID, agentID, newName string) error {
	lock, err := o.store.AcquireHostLock(hostID, "rename_agent", o.hostLockTTL)
	if err != nil {
		return err
	}
	defer lock.Release()

	agent, err := o.store.GetAgent(hostID, agentID)
	if err != nil {
		return err
	}
	oldSessionName := agent.SessionName(o.sessionPfx)
	agent.Name = newName
	if err := o.store.PutAgent(agent); err != nil {
		return err
	}

	host, err := o.store.GetHost(hostID)
	if err != nil {
		return nil // descriptor already renamed; session rename best-effort
	}
	port, ok := o.ports[host.Provider]
	if !ok {
		return nil
	}
	sess := session.New(port)
	return sess.Rename(ctx, hostID, oldSessionName, agent.SessionName(o.sessionPfx))
}

func (o *Orchestrator) lastRunningAgent(hostID, excludeAgentID string) bool {
	agents, err := o.store.ListAgents(hostID)
	if err != nil {
		return false
	}
	for _, a := range agents {
		if a.ID == excludeAgentID {
			continue
		}
		if a.State == types.AgentRunning {
			return false
		}
	}
	return true
}

func (o *Orchestrator) noRemainingAgents(hostID string) bool {
	agents, err := o.store.ListAgents(hostID)
	if err != nil {
		return false
	}
	return len(agents) == 0
}

func (o *Orchestrator) publish(t events.Type, hostID, agentID, msg string) {
	if o.broker == nil {
		return
	}
	o.broker.Publish(&events.Event{Type: t, HostID: hostID, AgentID: agentID, Message: msg})
}

// now returns the real clock's current time; every timestamp the
// orchestrator records goes through it.
func (o *Orchestrator) now() time.Time { return time.Now() }

func joinArgv(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}
